package databases

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoPaginate struct {
	limit int64
	page  int64
}

func newMongoPaginate(limit, page int) *mongoPaginate {
	if page < 1 {
		page = 1
	}
	return &mongoPaginate{
		limit: int64(limit),
		page:  int64(page),
	}
}

func (mp *mongoPaginate) getPaginatedOpts() *options.FindOptions {
	fOpt := options.Find()
	if mp.limit > 0 {
		fOpt.SetLimit(mp.limit)
		fOpt.SetSkip(mp.page*mp.limit - mp.limit)
	}
	return fOpt
}

// HistoryPage returns the find options for one page of a room's history, newest
// first. Page 1 holds the most recent limit messages. A limit of 0 reads everything.
func HistoryPage(limit, page int) *options.FindOptions {
	return newMongoPaginate(limit, page).getPaginatedOpts().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
}
