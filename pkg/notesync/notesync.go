// Package notesync receives a LiveChat transcript webhook and logs the chat as a note on the visitor's HubSpot contact.
package notesync

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/UKHomeOffice/notesync/internal/hubspot"
	"github.com/UKHomeOffice/notesync/internal/logging"
	"github.com/UKHomeOffice/notesync/pkg/transcript"
)

// CRM is an abstraction for a HubSpot client
type CRM interface {
	ContactByEmail(ctx context.Context, email string) (string, error)
	CreateContact(ctx context.Context, email, name string) (string, error)
	CreateNote(ctx context.Context, body string, ts time.Time) (string, error)
	AssociateNote(ctx context.Context, noteID, contactID string) error
}

// CRMFactory builds a CRM client for a token, once per invocation
type CRMFactory func(token string) (CRM, error)

// HubSpot builds a client for the API at HUBSPOT_URL, or the public API
func HubSpot(token string) (CRM, error) {

	base, ok := os.LookupEnv("HUBSPOT_URL")
	if !ok || base == "" {
		base = hubspot.DefaultURL
	}

	c, err := hubspot.NewClient(base, token, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Handler logs chats as HubSpot notes
type Handler struct {
	crm CRMFactory
	ssm ParameterGetter
	log *slog.Logger
	now func() time.Time
}

// NewHandler returns a new Handler, p may be nil when no SSM fallback is wanted
func NewHandler(f CRMFactory, p ParameterGetter, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{crm: f, ssm: p, log: log, now: time.Now}
}

// resolveContact finds the visitor's contact or creates one
func (h *Handler) resolveContact(ctx context.Context, crm CRM, v transcript.VisitorData, log *slog.Logger) (string, error) {

	id, err := crm.ContactByEmail(ctx, v.Email)
	if err == nil {
		log.Debug("found contact", "contact_id", id)
		return id, nil
	}

	// any lookup failure counts as an absent contact
	if !hubspot.IsNotFound(err) {
		log.Warn("contact lookup failed", "error", err)
	}
	log.Info("creating contact", "name", v.Name, "email", v.Email)

	id, err = crm.CreateContact(ctx, v.Email, v.Name)
	if err != nil {
		return "", err
	}
	return id, nil
}

// body returns the request body, decoded if API Gateway encoded it
func body(request *events.APIGatewayProxyRequest) ([]byte, error) {
	if !request.IsBase64Encoded {
		return []byte(request.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(request.Body)
	if err != nil {
		return nil, &transcript.ValidationError{Issues: []string{fmt.Sprintf("body is not valid base64: %v", err)}}
	}
	return b, nil
}

func failed(status int, err error) (events.APIGatewayProxyResponse, error) {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       err.Error(),
	}, err
}

// Handle deals with the incoming request
func (h *Handler) Handle(ctx context.Context, request *events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {

	log := h.log.With("request_id", logging.RequestID(ctx, request.RequestContext.RequestID))

	tok, err := h.token()
	if err != nil {
		log.Error("no HubSpot credential", "error", err)
		return failed(http.StatusInternalServerError, err)
	}

	b, err := body(request)
	if err != nil {
		log.Warn("rejected payload", "error", err)
		return failed(http.StatusBadRequest, err)
	}
	in, err := transcript.Parse(b)
	if err != nil {
		log.Warn("rejected payload", "error", err)
		var ve *transcript.ValidationError
		if errors.As(err, &ve) {
			return failed(http.StatusBadRequest, err)
		}
		return failed(http.StatusInternalServerError, err)
	}
	log = log.With("chat_id", in.Chat.ID)

	crm, err := h.crm(tok)
	if err != nil {
		log.Error("could not make HubSpot client", "error", err)
		return failed(http.StatusInternalServerError, fmt.Errorf("could not make HubSpot client: %w", err))
	}

	contactID, err := h.resolveContact(ctx, crm, in.Visitor, log)
	if err != nil {
		log.Error("could not resolve contact", "error", err)
		return failed(http.StatusInternalServerError, err)
	}

	note := transcript.Truncate(transcript.Format(in.Chat), transcript.MaxNoteLength)

	noteID, err := crm.CreateNote(ctx, note, h.now())
	if err != nil {
		log.Error("could not create note", "contact_id", contactID, "error", err)
		return failed(http.StatusInternalServerError, err)
	}

	err = crm.AssociateNote(ctx, noteID, contactID)
	if err != nil {
		log.Error("could not associate note", "contact_id", contactID, "note_id", noteID, "error", err)
		return failed(http.StatusInternalServerError, err)
	}

	log.Info("logged chat", "contact_id", contactID, "note_id", noteID, "messages", len(in.Chat.Messages))

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
	}, nil
}
