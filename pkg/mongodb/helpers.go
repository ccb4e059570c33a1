package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GenerateIDString generates a new MongoDB ObjectID as a string
func GenerateIDString() string {
	return primitive.NewObjectID().Hex()
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}

// BuildUpdateWithTimestamp builds a $set update document with automatic updatedAt
func BuildUpdateWithTimestamp(set bson.M) bson.M {
	set["updatedAt"] = Now()
	return bson.M{"$set": set}
}

// BuildIncrementUpdate builds a $inc update that also bumps updatedAt
func BuildIncrementUpdate(field string, value interface{}) bson.M {
	return bson.M{
		"$inc": bson.M{field: value},
		"$set": bson.M{"updatedAt": Now()},
	}
}

// BuildPushUpdate builds a $push update for append-only arrays
func BuildPushUpdate(field string, value interface{}) bson.M {
	return bson.M{
		"$push": bson.M{field: value},
		"$set":  bson.M{"updatedAt": Now()},
	}
}

// SortAscending creates an ascending sort option
func SortAscending(field string) bson.D {
	return bson.D{{Key: field, Value: 1}}
}

// SortDescending creates a descending sort option
func SortDescending(field string) bson.D {
	return bson.D{{Key: field, Value: -1}}
}

// Pagination represents pagination options
type Pagination struct {
	Page     int64
	PageSize int64
}

// DefaultPagination returns default pagination options
func DefaultPagination() Pagination {
	return Pagination{Page: 1, PageSize: 20}
}

// Skip returns the number of documents to skip
func (p Pagination) Skip() int64 {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// Limit returns the maximum number of documents to return
func (p Pagination) Limit() int64 {
	return p.PageSize
}
