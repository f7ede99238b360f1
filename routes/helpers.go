package routes

import (
	"errors"

	"github.com/gallhort/Baytup-sub000/services"
	"github.com/gallhort/Baytup-sub000/utils"

	"github.com/kataras/iris/v12"
)

// renderServiceError translates a service-layer error into the matching HTTP
// response. Conflict-class errors (double booking, illegal transitions,
// insufficient balance) map to 409 so clients can distinguish them from bad
// input.
func renderServiceError(ctx iris.Context, err error) {
	var transErr *services.InvalidTransitionError
	var escrowErr *services.InvalidEscrowStateError

	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.CreateNotFound(ctx)
	case errors.Is(err, services.ErrForbidden):
		utils.CreateError(iris.StatusForbidden, "Forbidden", "you do not have access to this resource", ctx)
	case errors.Is(err, services.ErrSlotNoLongerAvailable):
		utils.CreateError(iris.StatusConflict, "Conflict", "these dates are no longer available", ctx)
	case errors.Is(err, services.ErrInsufficientBalance):
		utils.CreateError(iris.StatusConflict, "Conflict", err.Error(), ctx)
	case errors.As(err, &transErr), errors.As(err, &escrowErr):
		utils.CreateError(iris.StatusConflict, "Conflict", err.Error(), ctx)
	case errors.Is(err, services.ErrValidation):
		utils.CreateError(iris.StatusBadRequest, "Validation Error", err.Error(), ctx)
	case errors.Is(err, services.ErrGatewayTimeout):
		utils.CreateError(iris.StatusGatewayTimeout, "Gateway Timeout", "payment provider did not answer in time", ctx)
	case errors.Is(err, services.ErrGatewayError):
		utils.CreateError(iris.StatusBadGateway, "Gateway Error", "payment provider rejected the request", ctx)
	default:
		utils.CreateInternalServerError(ctx)
	}
}
