package utils

import (
	"fmt"

	"github.com/kataras/iris/v12"
)

// PageMeta describes one page of an admin listing.
type PageMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// JSONPage writes the admin listing envelope: data, meta and relative
// next/prev links. Admin screens page bookings, escrows and payouts through
// this one shape.
func JSONPage(ctx iris.Context, data interface{}, page, perPage int, total int64) {
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	links := iris.Map{}
	if page < totalPages {
		links["next"] = fmt.Sprintf("%s?page=%d&per_page=%d", ctx.Path(), page+1, perPage)
	}
	if page > 1 {
		links["prev"] = fmt.Sprintf("%s?page=%d&per_page=%d", ctx.Path(), page-1, perPage)
	}

	ctx.JSON(iris.Map{
		"data":  data,
		"meta":  PageMeta{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages},
		"links": links,
	})
}

// JSONError writes the admin error envelope with a machine code and a
// human message.
func JSONError(ctx iris.Context, status int, code, message string) {
	ctx.StatusCode(status)
	ctx.JSON(iris.Map{"error": code, "message": message})
}
