package routes

import (
	"time"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// GetUserNotifications lists the caller's in-app notifications, newest
// first.
func GetUserNotifications(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var notifications []models.Notification
	q := storage.DB.Where("user_id = ?", claims.ID)
	if ctx.URLParamDefault("unread", "") == "true" {
		q = q.Where("is_read = ?", false)
	}
	if err := q.Order("created_at DESC").Limit(100).Find(&notifications).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(notifications)
}

// MarkNotificationRead flips one notification to read.
func MarkNotificationRead(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var notification models.Notification
	if err := storage.DB.First(&notification, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if notification.UserID != claims.ID {
		utils.CreateError(iris.StatusForbidden, "Forbidden", "not your notification", ctx)
		return
	}

	now := time.Now().UTC()
	notification.IsRead = true
	notification.ReadAt = &now
	if err := storage.DB.Save(&notification).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(notification)
}

// MarkAllNotificationsRead flips all of the caller's unread notifications.
func MarkAllNotificationsRead(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	now := time.Now().UTC()
	if err := storage.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", claims.ID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true})
}

// UpdateNotificationSettings toggles push delivery for the caller.
func UpdateNotificationSettings(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input struct {
		AllowsNotifications bool `json:"allowsNotifications"`
	}
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	if err := storage.DB.First(&user, claims.ID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	user.AllowsNotifications = &input.AllowsNotifications
	if err := storage.DB.Save(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(iris.Map{"success": true, "allowsNotifications": input.AllowsNotifications})
}
