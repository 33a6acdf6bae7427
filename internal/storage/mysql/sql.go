package mysql

// -----------------------------------------------------------------------------
// SEED / ADMIN WRITES
// -----------------------------------------------------------------------------

const upsertCitySQL = `
INSERT INTO cities (id, name, description)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
  name        = VALUES(name),
  description = VALUES(description)
`

const deleteCityChildrenSQL = `DELETE FROM points_of_interest WHERE city_id = ?`

// Fails with a duplicate key when the id already belongs to another city.
const insertPointOfInterestSQL = `
INSERT INTO points_of_interest (id, city_id, name, description)
VALUES (?, ?, ?, ?)
`

// -----------------------------------------------------------------------------
// CHILD COLLECTION WRITES
// -----------------------------------------------------------------------------

const updatePointOfInterestSQL = `
UPDATE points_of_interest
SET name = ?, description = ?
WHERE id = ? AND city_id = ?
`

const deletePointOfInterestSQL = `DELETE FROM points_of_interest WHERE id = ? AND city_id = ?`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getCitySQL = `SELECT id, name, description FROM cities WHERE id = ?`

const cityExistsSQL = `SELECT EXISTS(SELECT 1 FROM cities WHERE id = ?)`

const getPointOfInterestSQL = `
SELECT id, city_id, name, description
FROM points_of_interest
WHERE id = ? AND city_id = ?
`

const listPointsOfInterestSQL = `
SELECT id, city_id, name, description
FROM points_of_interest
WHERE city_id = ?
ORDER BY id
`

const pointOfInterestExistsSQL = `SELECT EXISTS(SELECT 1 FROM points_of_interest WHERE id = ? AND city_id = ?)`

const maxPointOfInterestIDSQL = `SELECT COALESCE(MAX(id), 0) FROM points_of_interest`
