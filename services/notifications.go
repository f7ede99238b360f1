package services

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/gallhort/Baytup-sub000/models"
	"github.com/gallhort/Baytup-sub000/storage"
	"github.com/gallhort/Baytup-sub000/utils"
)

// NotificationService handles all push notification logic
type NotificationService struct{}

// NewNotificationService creates a new notification service instance
func NewNotificationService() *NotificationService {
	return &NotificationService{}
}

// NotificationData represents the data payload for notifications
type NotificationData struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	BookingID string `json:"bookingId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	HostID    string `json:"hostId,omitempty"`
	// Deep linking data
	Screen string `json:"screen"`           // Target screen to navigate to
	Params string `json:"params"`           // JSON string of navigation parameters
	Action string `json:"action,omitempty"` // Specific action to perform
}

// getUserPushTokens retrieves all push tokens for a user
func (ns *NotificationService) getUserPushTokens(userID uint) ([]string, error) {
	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("user not found: %v", err)
	}

	if user.AllowsNotifications == nil || !*user.AllowsNotifications || user.PushTokens == nil {
		return nil, fmt.Errorf("user has notifications disabled or no tokens")
	}

	var tokens []string
	if err := json.Unmarshal(user.PushTokens, &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal push tokens: %v", err)
	}

	return tokens, nil
}

// persist stores the in-app notification row. Push failures never lose the
// notification; the row is the durable record.
func (ns *NotificationService) persist(userID uint, notifType, title, body, refType string, refID uint) {
	notification := models.Notification{
		UserID:  userID,
		Type:    notifType,
		Title:   title,
		Message: body,
		RefType: refType,
		RefID:   refID,
	}
	if err := storage.DB.Create(&notification).Error; err != nil {
		log.Printf("failed to persist notification for user %d: %v", userID, err)
	}
}

// SendNotificationToUser sends a notification to a specific user
func (ns *NotificationService) SendNotificationToUser(userID uint, title, body string, data NotificationData) error {
	tokens, err := ns.getUserPushTokens(userID)
	if err != nil {
		log.Printf("Failed to get push tokens for user %d: %v", userID, err)
		return err
	}

	dataMap := map[string]string{
		"type":      data.Type,
		"id":        data.ID,
		"bookingId": data.BookingID,
		"userId":    data.UserID,
		"hostId":    data.HostID,
	}

	var lastError error
	for _, token := range tokens {
		if err := utils.SendNotification(token, title, body, dataMap); err != nil {
			log.Printf("Failed to send notification to token %s: %v", token, err)
			lastError = err
		}
	}

	return lastError
}

// notify persists the row then pushes, in that order.
func (ns *NotificationService) notify(userID uint, title, body string, data NotificationData, refType string, refID uint) error {
	ns.persist(userID, data.Type, title, body, refType, refID)
	return ns.SendNotificationToUser(userID, title, body, data)
}

// SendBookingRequestNotificationToHost notifies the host of a new booking request
func (ns *NotificationService) SendBookingRequestNotificationToHost(bookingID, hostID, guestID uint, guestName, listingTitle string) error {
	title := "🏠 Nouvelle Demande de Réservation!"
	body := fmt.Sprintf("%s a demandé une réservation pour %s", guestName, listingTitle)

	params := fmt.Sprintf(`{"bookingId": %d, "guestId": %d}`, bookingID, guestID)

	data := NotificationData{
		Type:      "booking_requested",
		ID:        fmt.Sprintf("%d", bookingID),
		BookingID: fmt.Sprintf("%d", bookingID),
		UserID:    fmt.Sprintf("%d", guestID),
		HostID:    fmt.Sprintf("%d", hostID),
		Screen:    "HostBookings",
		Params:    params,
		Action:    "view_booking",
	}

	return ns.notify(hostID, title, body, data, "booking", bookingID)
}

// SendBookingApprovalNotificationToGuest notifies the guest their request was accepted
func (ns *NotificationService) SendBookingApprovalNotificationToGuest(bookingID, guestID, hostID uint, hostName, listingTitle string) error {
	title := "🎉 Réservation Acceptée!"
	body := fmt.Sprintf("%s a accepté votre réservation pour %s. Procédez au paiement.", hostName, listingTitle)

	params := fmt.Sprintf(`{"bookingId": %d, "hostId": %d}`, bookingID, hostID)

	data := NotificationData{
		Type:      "booking_approved",
		ID:        fmt.Sprintf("%d", bookingID),
		BookingID: fmt.Sprintf("%d", bookingID),
		UserID:    fmt.Sprintf("%d", guestID),
		HostID:    fmt.Sprintf("%d", hostID),
		Screen:    "MyBookings",
		Params:    params,
		Action:    "pay_booking",
	}

	return ns.notify(guestID, title, body, data, "booking", bookingID)
}

// SendBookingRejectionNotificationToGuest notifies the guest their request was declined
func (ns *NotificationService) SendBookingRejectionNotificationToGuest(bookingID, guestID, hostID uint, hostName, listingTitle string) error {
	title := "😔 Réservation Refusée"
	body := fmt.Sprintf("%s a refusé votre réservation pour %s", hostName, listingTitle)

	params := fmt.Sprintf(`{"bookingId": %d, "hostId": %d}`, bookingID, hostID)

	data := NotificationData{
		Type:      "booking_rejected",
		ID:        fmt.Sprintf("%d", bookingID),
		BookingID: fmt.Sprintf("%d", bookingID),
		UserID:    fmt.Sprintf("%d", guestID),
		HostID:    fmt.Sprintf("%d", hostID),
		Screen:    "MyBookings",
		Params:    params,
		Action:    "view_booking",
	}

	return ns.notify(guestID, title, body, data, "booking", bookingID)
}

// SendPaymentConfirmedNotifications tells both sides the payment went through
func (ns *NotificationService) SendPaymentConfirmedNotifications(bookingID, guestID, hostID uint, listingTitle string, amount float64, currency string) {
	guestTitle := "✅ Paiement Confirmé!"
	guestBody := fmt.Sprintf("Votre paiement de %.2f %s pour %s a été confirmé.", amount, currency, listingTitle)
	hostTitle := "💰 Paiement Reçu!"
	hostBody := fmt.Sprintf("Le paiement pour %s a été confirmé. Les fonds sont sous séquestre.", listingTitle)

	data := NotificationData{
		Type:      "payment_confirmed",
		ID:        fmt.Sprintf("%d", bookingID),
		BookingID: fmt.Sprintf("%d", bookingID),
		Screen:    "MyBookings",
		Params:    fmt.Sprintf(`{"bookingId": %d}`, bookingID),
	}

	if err := ns.notify(guestID, guestTitle, guestBody, data, "booking", bookingID); err != nil {
		log.Printf("payment notification to guest %d failed: %v", guestID, err)
	}
	data.Screen = "HostBookings"
	if err := ns.notify(hostID, hostTitle, hostBody, data, "booking", bookingID); err != nil {
		log.Printf("payment notification to host %d failed: %v", hostID, err)
	}
}

// SendCancellationNotification tells the other party a booking was cancelled
func (ns *NotificationService) SendCancellationNotification(bookingID, recipientID uint, cancelledBy, listingTitle string, refund float64, currency string) error {
	title := "❌ Réservation Annulée"
	body := fmt.Sprintf("La réservation pour %s a été annulée par le %s.", listingTitle, frenchRole(cancelledBy))
	if refund > 0 {
		body = fmt.Sprintf("%s Remboursement: %.2f %s.", body, refund, currency)
	}

	data := NotificationData{
		Type:      "booking_cancelled",
		ID:        fmt.Sprintf("%d", bookingID),
		BookingID: fmt.Sprintf("%d", bookingID),
		Screen:    "MyBookings",
		Params:    fmt.Sprintf(`{"bookingId": %d}`, bookingID),
	}

	return ns.notify(recipientID, title, body, data, "booking", bookingID)
}

// SendEscrowReleasedNotificationToHost tells the host their earnings are available
func (ns *NotificationService) SendEscrowReleasedNotificationToHost(escrowID, bookingID, hostID uint, amount float64, currency string) error {
	title := "💸 Fonds Libérés!"
	body := fmt.Sprintf("%.2f %s ont été libérés vers votre solde. Vous pouvez demander un virement.", amount, currency)

	data := NotificationData{
		Type:      "escrow_released",
		ID:        fmt.Sprintf("%d", escrowID),
		BookingID: fmt.Sprintf("%d", bookingID),
		HostID:    fmt.Sprintf("%d", hostID),
		Screen:    "Earnings",
		Params:    fmt.Sprintf(`{"escrowId": %d}`, escrowID),
		Action:    "view_balance",
	}

	return ns.notify(hostID, title, body, data, "escrow", escrowID)
}

// SendDisputeNotifications warns both sides that the booking is under dispute
func (ns *NotificationService) SendDisputeNotifications(bookingID, guestID, hostID uint, listingTitle string) {
	title := "⚠️ Litige Ouvert"
	body := fmt.Sprintf("Un litige a été ouvert pour la réservation de %s. Les fonds sont gelés en attendant la résolution.", listingTitle)

	data := NotificationData{
		Type:      "booking_disputed",
		ID:        fmt.Sprintf("%d", bookingID),
		BookingID: fmt.Sprintf("%d", bookingID),
		Screen:    "MyBookings",
		Params:    fmt.Sprintf(`{"bookingId": %d}`, bookingID),
	}

	for _, uid := range []uint{guestID, hostID} {
		if err := ns.notify(uid, title, body, data, "booking", bookingID); err != nil {
			log.Printf("dispute notification to user %d failed: %v", uid, err)
		}
	}
}

// SendPayoutStatusNotificationToHost tells the host about a payout update
func (ns *NotificationService) SendPayoutStatusNotificationToHost(payoutID, hostID uint, status string, amount float64, reason string) error {
	var title, body string

	switch status {
	case models.PayoutProcessing:
		title = "🏦 Virement en Cours"
		body = fmt.Sprintf("Votre demande de virement de %.2f DZD est en cours de traitement.", amount)
	case models.PayoutCompleted:
		title = "✅ Virement Effectué!"
		body = fmt.Sprintf("Votre virement de %.2f DZD a été effectué vers votre compte bancaire.", amount)
	case models.PayoutRejected:
		title = "❌ Virement Refusé"
		body = fmt.Sprintf("Votre demande de virement de %.2f DZD a été refusée. Motif: %s", amount, reason)
	default:
		title = "🏦 Mise à Jour de Virement"
		body = fmt.Sprintf("Le statut de votre virement de %.2f DZD a été mis à jour: %s", amount, status)
	}

	data := NotificationData{
		Type:   "payout_" + status,
		ID:     fmt.Sprintf("%d", payoutID),
		HostID: fmt.Sprintf("%d", hostID),
		Screen: "Earnings",
		Params: fmt.Sprintf(`{"payoutId": %d}`, payoutID),
		Action: "view_payout",
	}

	return ns.notify(hostID, title, body, data, "payout", payoutID)
}

// SendHostReminderNotification nags a host about a request nearing its deadline
func (ns *NotificationService) SendHostReminderNotification(bookingID, hostID uint, guestName, listingTitle string) error {
	title := "⏰ Demande en Attente!"
	body := fmt.Sprintf("La demande de %s pour %s expire bientôt. Répondez avant qu'elle n'expire!", guestName, listingTitle)

	data := NotificationData{
		Type:      "booking_reminder",
		ID:        fmt.Sprintf("%d", bookingID),
		BookingID: fmt.Sprintf("%d", bookingID),
		HostID:    fmt.Sprintf("%d", hostID),
		Screen:    "HostBookings",
		Params:    fmt.Sprintf(`{"bookingId": %d}`, bookingID),
		Action:    "respond_booking",
	}

	return ns.notify(hostID, title, body, data, "booking", bookingID)
}

func frenchRole(role string) string {
	switch role {
	case "guest":
		return "voyageur"
	case "host":
		return "hôte"
	default:
		return "support"
	}
}

// Global notification service instance
var NotificationServiceInstance = NewNotificationService()
