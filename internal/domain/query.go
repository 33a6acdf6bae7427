package domain

import "strings"

type CitiesQuery struct {
	Name        string
	SearchQuery string
	PageNumber  int
	PageSize    int
}

// Normalized trims both filters; empty after trimming means "not set".
func (q CitiesQuery) Normalized() CitiesQuery {
	q.Name = strings.TrimSpace(q.Name)
	q.SearchQuery = strings.TrimSpace(q.SearchQuery)
	return q
}

// Matches applies the name and search filters of an already normalized query.
func (q CitiesQuery) Matches(c City) bool {
	if q.Name != "" && c.Name != q.Name {
		return false
	}
	if q.SearchQuery != "" {
		inName := strings.Contains(c.Name, q.SearchQuery)
		inDesc := c.Description != nil && strings.Contains(*c.Description, q.SearchQuery)
		if !inName && !inDesc {
			return false
		}
	}
	return true
}
