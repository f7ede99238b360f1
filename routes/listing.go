package routes

import (
	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

type CreateListingInput struct {
	Title              string  `json:"title" validate:"required,max=256"`
	Description        string  `json:"description" validate:"max=2000"`
	AddressLine        string  `json:"addressLine" validate:"max=200"`
	City               string  `json:"city" validate:"required,max=100"`
	Country            string  `json:"country" validate:"required,max=100"`
	Capacity           int     `json:"capacity" validate:"required,gte=1,lte=32"`
	Bedrooms           int     `json:"bedrooms" validate:"gte=0,lte=20"`
	Bathrooms          float32 `json:"bathrooms" validate:"gte=0,lte=20"`
	NightlyPrice       float64 `json:"nightlyPrice" validate:"required,gt=0"`
	CleaningFee        float64 `json:"cleaningFee" validate:"gte=0"`
	Currency           string  `json:"currency" validate:"omitempty,oneof=DZD EUR"`
	CancellationPolicy string  `json:"cancellationPolicy" validate:"omitempty,oneof=flexible moderate strict"`
	InstantBook        bool    `json:"instantBook"`
	MinStay            int     `json:"minStay" validate:"omitempty,gte=1,lte=365"`
	MaxStay            int     `json:"maxStay" validate:"omitempty,gte=0,lte=365"`
}

func CreateListing(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var input CreateListingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	currency := input.Currency
	if currency == "" {
		currency = "DZD"
	}
	policy := input.CancellationPolicy
	if policy == "" {
		policy = models.PolicyModerate
	}
	minStay := input.MinStay
	if minStay == 0 {
		minStay = 1
	}
	active := true

	listing := models.Listing{
		HostID:             claims.ID,
		Title:              input.Title,
		Description:        input.Description,
		AddressLine:        input.AddressLine,
		City:               input.City,
		Country:            input.Country,
		Capacity:           input.Capacity,
		Bedrooms:           input.Bedrooms,
		Bathrooms:          input.Bathrooms,
		NightlyPrice:       input.NightlyPrice,
		CleaningFee:        input.CleaningFee,
		Currency:           currency,
		CancellationPolicy: policy,
		InstantBook:        input.InstantBook,
		MinStay:            minStay,
		MaxStay:            input.MaxStay,
		IsActive:           &active,
	}

	if err := storage.DB.Create(&listing).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(listing)
}

func GetListing(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	var listing models.Listing
	if err := storage.DB.First(&listing, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	ctx.JSON(listing)
}

// GetListings lists active listings with optional city filtering.
func GetListings(ctx iris.Context) {
	var listings []models.Listing
	q := storage.DB.Where("is_active = ?", true)
	if city := ctx.URLParamDefault("city", ""); city != "" {
		q = q.Where("city = ?", city)
	}
	if err := q.Order("created_at DESC").Limit(100).Find(&listings).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(listings)
}

// GetHostListings lists the caller's own listings, active or not.
func GetHostListings(ctx iris.Context) {
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var listings []models.Listing
	if err := storage.DB.Where("host_id = ?", claims.ID).Order("created_at DESC").Find(&listings).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(listings)
}

type UpdateListingInput struct {
	Title              *string  `json:"title" validate:"omitempty,max=256"`
	Description        *string  `json:"description" validate:"omitempty,max=2000"`
	NightlyPrice       *float64 `json:"nightlyPrice" validate:"omitempty,gt=0"`
	CleaningFee        *float64 `json:"cleaningFee" validate:"omitempty,gte=0"`
	CancellationPolicy *string  `json:"cancellationPolicy" validate:"omitempty,oneof=flexible moderate strict"`
	InstantBook        *bool    `json:"instantBook"`
	MinStay            *int     `json:"minStay" validate:"omitempty,gte=1,lte=365"`
	MaxStay            *int     `json:"maxStay" validate:"omitempty,gte=0,lte=365"`
	IsActive           *bool    `json:"isActive"`
}

// UpdateListing patches a listing. Price and policy changes never touch
// existing bookings: their pricing and policy were frozen at creation.
func UpdateListing(ctx iris.Context) {
	id, err := ctx.Params().GetUint("id")
	if err != nil {
		utils.CreateError(iris.StatusBadRequest, "Validation Error", "invalid id", ctx)
		return
	}
	claims := jwt.Get(ctx).(*utils.AccessToken)

	var listing models.Listing
	if err := storage.DB.First(&listing, id).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if listing.HostID != claims.ID {
		utils.CreateError(iris.StatusForbidden, "Forbidden", "not your listing", ctx)
		return
	}

	var input UpdateListingInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if input.Title != nil {
		listing.Title = *input.Title
	}
	if input.Description != nil {
		listing.Description = *input.Description
	}
	if input.NightlyPrice != nil {
		listing.NightlyPrice = *input.NightlyPrice
	}
	if input.CleaningFee != nil {
		listing.CleaningFee = *input.CleaningFee
	}
	if input.CancellationPolicy != nil {
		listing.CancellationPolicy = *input.CancellationPolicy
	}
	if input.InstantBook != nil {
		listing.InstantBook = *input.InstantBook
	}
	if input.MinStay != nil {
		listing.MinStay = *input.MinStay
	}
	if input.MaxStay != nil {
		listing.MaxStay = *input.MaxStay
	}
	if input.IsActive != nil {
		listing.IsActive = input.IsActive
	}

	if err := storage.DB.Save(&listing).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	ctx.JSON(listing)
}
