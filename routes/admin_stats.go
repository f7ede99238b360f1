package routes

import (
	"time"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/storage"

	"github.com/kataras/iris/v12"
)

// GET /admin/stats
func AdminStats(ctx iris.Context) {
	var pendingBookings int64
	storage.DB.Model(&models.Booking{}).Where("status = ?", models.BookingPending).Count(&pendingBookings)
	var heldEscrows, frozenEscrows int64
	storage.DB.Model(&models.Escrow{}).Where("status = ?", models.EscrowHeld).Count(&heldEscrows)
	storage.DB.Model(&models.Escrow{}).Where("status = ?", models.EscrowFrozen).Count(&frozenEscrows)
	var pendingPayouts int64
	storage.DB.Model(&models.Payout{}).Where("status = ?", models.PayoutPending).Count(&pendingPayouts)

	since7 := time.Now().AddDate(0, 0, -7)
	since30 := time.Now().AddDate(0, 0, -30)
	var newBookings7, newBookings30 int64
	storage.DB.Model(&models.Booking{}).Where("created_at >= ?", since7).Count(&newBookings7)
	storage.DB.Model(&models.Booking{}).Where("created_at >= ?", since30).Count(&newBookings30)

	var heldFunds float64
	storage.DB.Model(&models.Escrow{}).Where("status IN ?", []string{models.EscrowHeld, models.EscrowFrozen}).
		Select("COALESCE(SUM(amount), 0)").Scan(&heldFunds)

	ctx.JSON(iris.Map{
		"data": iris.Map{
			"pending_bookings": pendingBookings,
			"held_escrows":     heldEscrows,
			"frozen_escrows":   frozenEscrows,
			"pending_payouts":  pendingPayouts,
			"held_funds":       heldFunds,
			"new_bookings_7d":  newBookings7,
			"new_bookings_30d": newBookings30,
		},
		"meta":  iris.Map{},
		"links": iris.Map{},
	})
}

// GET /admin/activity
func AdminActivity(ctx iris.Context) {
	var logs []models.AuditLog
	storage.DB.Order("created_at DESC").Limit(100).Find(&logs)
	ctx.JSON(iris.Map{"data": logs, "meta": iris.Map{}, "links": iris.Map{}})
}
