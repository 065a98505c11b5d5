package vector

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the database/sql driver to open stores with. It is the stock SQLite driver
// plus the vec_cosine_distance(stored, query) scalar function over vector literals.
const DriverName = "sqlite3_kotae"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("vec_cosine_distance", newDistanceFunc().cosineDistance, true)
		},
	})
}

// distanceFunc backs vec_cosine_distance on one connection. The query argument is the
// same literal for every row of a scan, so its parsed form is kept until the literal
// changes. A connection evaluates one statement at a time, which makes the cache safe
// without locking.
type distanceFunc struct {
	literal string
	query   []float32
}

func newDistanceFunc() *distanceFunc {
	return &distanceFunc{}
}

func (f *distanceFunc) parseQuery(literal string) ([]float32, error) {
	if f.query != nil && literal == f.literal {
		return f.query, nil
	}
	v, err := FromLiteral(literal)
	if err != nil {
		return nil, err
	}
	f.literal, f.query = literal, v
	return v, nil
}

// cosineDistance returns NULL for rows that cannot be compared with the query
// (dimension mismatch, zero vector) so they drop out of the search instead of failing it.
func (f *distanceFunc) cosineDistance(stored, query string) (any, error) {
	b, err := f.parseQuery(query)
	if err != nil {
		return nil, err
	}
	a, err := FromLiteral(stored)
	if err != nil {
		return nil, nil
	}
	d, err := CosineDistance(a, b)
	if err != nil {
		return nil, nil
	}
	return d, nil
}
