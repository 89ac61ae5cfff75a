package notesync

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/events/test"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/UKHomeOffice/notesync/internal/hubspot"
	"github.com/UKHomeOffice/notesync/pkg/transcript"
)

type mockCRM struct {
	contactID string
	lookupErr error
	createErr error
	noteErr   error
	assocErr  error

	calls []string
	note  string
	ts    time.Time
}

func (m *mockCRM) ContactByEmail(ctx context.Context, email string) (string, error) {
	m.calls = append(m.calls, "lookup "+email)
	if m.lookupErr != nil {
		return "", m.lookupErr
	}
	if m.contactID == "" {
		return "", &hubspot.APIError{StatusCode: http.StatusNotFound, Message: "resource not found"}
	}
	return m.contactID, nil
}

func (m *mockCRM) CreateContact(ctx context.Context, email, name string) (string, error) {
	m.calls = append(m.calls, "create "+email+" "+name)
	if m.createErr != nil {
		return "", m.createErr
	}
	return "new-1", nil
}

func (m *mockCRM) CreateNote(ctx context.Context, body string, ts time.Time) (string, error) {
	m.calls = append(m.calls, "note")
	m.note = body
	m.ts = ts
	if m.noteErr != nil {
		return "", m.noteErr
	}
	return "note-1", nil
}

func (m *mockCRM) AssociateNote(ctx context.Context, noteID, contactID string) error {
	m.calls = append(m.calls, "associate "+noteID+" "+contactID)
	return m.assocErr
}

type mockSSM struct {
	ssmiface.SSMAPI
	value string
	err   error
	names []string
}

func (ms *mockSSM) GetParameter(in *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
	ms.names = append(ms.names, aws.StringValue(in.Name))
	if !aws.BoolValue(in.WithDecryption) {
		return nil, errors.New("parameter must be decrypted")
	}
	if ms.err != nil {
		return nil, ms.err
	}
	return &ssm.GetParameterOutput{Parameter: &ssm.Parameter{Value: aws.String(ms.value)}}, nil
}

var fixedNow = time.Unix(1600000100, 0)

func discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(ioutil.Discard, nil))
}

// newTestHandler returns a handler handing out crm and recording the tokens it was built with
func newTestHandler(crm *mockCRM, p ParameterGetter, tokens *[]string) *Handler {
	h := NewHandler(func(token string) (CRM, error) {
		*tokens = append(*tokens, token)
		return crm, nil
	}, p, discard())
	h.now = func() time.Time { return fixedNow }
	return h
}

// getMsg gets test input
func getMsg(p int) (string, error) {

	body, err := ioutil.ReadFile("../../test_payloads.json")
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("cases.%v", p)
	res := gjson.GetManyBytes(body, path)

	return res[0].Raw, nil
}

func TestHandle(t *testing.T) {

	tt := []struct {
		name   string
		input  int
		crm    *mockCRM
		calls  []string
		status int
		err    string
	}{
		{name: "existing contact", input: 0, crm: &mockCRM{contactID: "101"}, status: http.StatusOK,
			calls: []string{"lookup alice@example.com", "note", "associate note-1 101"}},
		{name: "new contact", input: 0, crm: &mockCRM{}, status: http.StatusOK,
			calls: []string{"lookup alice@example.com", "create alice@example.com Alice", "note", "associate note-1 new-1"}},
		{name: "lookup error creates", input: 3,
			crm:    &mockCRM{contactID: "101", lookupErr: &hubspot.APIError{StatusCode: http.StatusBadGateway, Message: "upstream"}},
			status: http.StatusOK,
			calls:  []string{"lookup dave@example.com", "create dave@example.com Dave", "note", "associate note-1 new-1"}},
		{name: "create fails", input: 0, crm: &mockCRM{createErr: errors.New("could not create contact: conflict")},
			status: http.StatusInternalServerError, err: "could not create contact: conflict",
			calls: []string{"lookup alice@example.com", "create alice@example.com Alice"}},
		{name: "note fails", input: 0, crm: &mockCRM{contactID: "101", noteErr: errors.New("could not create note: boom")},
			status: http.StatusInternalServerError, err: "could not create note: boom",
			calls: []string{"lookup alice@example.com", "note"}},
		{name: "associate fails", input: 0, crm: &mockCRM{contactID: "101", assocErr: errors.New("could not associate note")},
			status: http.StatusInternalServerError, err: "could not associate note",
			calls: []string{"lookup alice@example.com", "note", "associate note-1 101"}},
		{name: "missing chat id", input: 1, crm: &mockCRM{contactID: "101"},
			status: http.StatusBadRequest, err: "chat.id: required"},
		{name: "invalid user type", input: 2, crm: &mockCRM{contactID: "101"},
			status: http.StatusBadRequest, err: "user_type: invalid value"},
		{name: "duplicate user type", input: 5, crm: &mockCRM{contactID: "101"},
			status: http.StatusBadRequest, err: `chat.messages.0.user_type: invalid value "robot"`},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {

			t.Setenv("HUBSPOT_TOKEN", "pat-123")

			msg, err := getMsg(tc.input)
			if err != nil {
				t.Fatalf("could not get message: %v", err)
			}

			var tokens []string
			h := newTestHandler(tc.crm, nil, &tokens)

			req := events.APIGatewayProxyRequest{
				Path: "/",
				Body: msg,
			}

			res, err := h.Handle(context.Background(), &req)

			if res.StatusCode != tc.status {
				t.Errorf("expected status %v, got %v", tc.status, res.StatusCode)
			}
			if diff := cmp.Diff(tc.calls, tc.crm.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%v", diff)
			}

			if tc.err != "" {
				if err == nil {
					t.Fatalf("expected error %q, got none", tc.err)
				}
				if msg := err.Error(); !strings.Contains(msg, tc.err) {
					t.Errorf("expected error %q, got: %q", tc.err, msg)
				}
				if res.Body != err.Error() {
					t.Errorf("expected body %q, got %q", err.Error(), res.Body)
				}
				if tc.status == http.StatusBadRequest && len(tokens) != 0 {
					t.Errorf("expected no client for a rejected payload, got %v", len(tokens))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Body != "" {
				t.Errorf("expected empty body, got %q", res.Body)
			}
			if diff := cmp.Diff([]string{"pat-123"}, tokens); diff != "" {
				t.Errorf("tokens mismatch (-want +got):\n%v", diff)
			}
			if !tc.crm.ts.Equal(fixedNow) {
				t.Errorf("expected note timestamp %v, got %v", fixedNow, tc.crm.ts)
			}
		})
	}
}

func TestHandleNoteBody(t *testing.T) {

	t.Setenv("HUBSPOT_TOKEN", "pat-123")

	var inputEvent events.APIGatewayProxyRequest
	input := test.ReadJSONFromFile(t, "../../test_event.json")
	if err := json.Unmarshal(input, &inputEvent); err != nil {
		t.Fatalf("could not unmarshal event: %v", err)
	}

	crm := &mockCRM{contactID: "101"}
	var tokens []string
	res, err := newTestHandler(crm, nil, &tokens).Handle(context.Background(), &inputEvent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected status OK, got %v", res.StatusCode)
	}

	want := "LiveChat conversation transcript for chat https://my.livechatinc.com/archives/QFX7W3K2TM:<br/>" +
		"------------<br/>" +
		"[7:26:40 AM] Alice: Hi, my order has not arrived<br/>" +
		"[7:27:45 AM] Bob: Sorry to hear that.<br/>What is the order number?<br/>" +
		"(Times in GMT-5)"
	if diff := cmp.Diff(want, crm.note); diff != "" {
		t.Errorf("note body mismatch (-want +got):\n%v", diff)
	}
}

func TestHandleTruncatesNote(t *testing.T) {

	t.Setenv("HUBSPOT_TOKEN", "pat-123")

	in := transcript.Input{
		Chat:    transcript.ChatData{ID: "LONG", StartedTimestamp: 1600000000000, EndedTimestamp: 1600000090000},
		Visitor: transcript.VisitorData{ID: "v1", Name: "Alice", Email: "alice@example.com"},
	}
	for i := 0; i < 100; i++ {
		in.Chat.Messages = append(in.Chat.Messages, transcript.Message{
			UserType: transcript.Visitor, AuthorName: "Alice", Text: strings.Repeat("x", 1000), Timestamp: 1600000000000,
		})
	}
	p, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("could not make incoming payload: %v", err)
	}

	crm := &mockCRM{contactID: "101"}
	var tokens []string
	_, err = newTestHandler(crm, nil, &tokens).Handle(context.Background(), &events.APIGatewayProxyRequest{Body: string(p)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := len([]rune(crm.note)); n != transcript.MaxNoteLength {
		t.Errorf("expected note of %v characters, got %v", transcript.MaxNoteLength, n)
	}
}

func TestHandleBase64(t *testing.T) {

	t.Setenv("HUBSPOT_TOKEN", "pat-123")

	msg, err := getMsg(0)
	if err != nil {
		t.Fatalf("could not get message: %v", err)
	}

	tt := []struct {
		name   string
		body   string
		status int
	}{
		{name: "happy", body: base64.StdEncoding.EncodeToString([]byte(msg)), status: http.StatusOK},
		{name: "unhappy", body: "not base64!", status: http.StatusBadRequest},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			crm := &mockCRM{contactID: "101"}
			var tokens []string
			res, _ := newTestHandler(crm, nil, &tokens).Handle(context.Background(),
				&events.APIGatewayProxyRequest{Body: tc.body, IsBase64Encoded: true})
			if res.StatusCode != tc.status {
				t.Errorf("expected status %v, got %v", tc.status, res.StatusCode)
			}
		})
	}
}

func TestCredentials(t *testing.T) {

	tt := []struct {
		name      string
		token     string
		parameter string
		ssm       *mockSSM
		body      string
		want      string
		err       error
	}{
		{name: "env", token: "pat-123", want: "pat-123"},
		{name: "env wins over ssm", token: "pat-123", parameter: "/notesync/token",
			ssm: &mockSSM{value: "pat-ssm"}, want: "pat-123"},
		{name: "ssm", parameter: "/notesync/token", ssm: &mockSSM{value: "pat-ssm"}, want: "pat-ssm"},
		{name: "ssm error", parameter: "/notesync/token",
			ssm: &mockSSM{err: errors.New("ParameterNotFound")}, err: ErrMissingCredential},
		{name: "ssm empty", parameter: "/notesync/token", ssm: &mockSSM{}, err: ErrMissingCredential},
		{name: "no ssm client", parameter: "/notesync/token", err: ErrMissingCredential},
		{name: "missing", err: ErrMissingCredential},
		{name: "missing with bad payload", body: "{}", err: ErrMissingCredential},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {

			t.Setenv("HUBSPOT_TOKEN", tc.token)
			t.Setenv("HUBSPOT_TOKEN_PARAMETER", tc.parameter)

			body := tc.body
			if body == "" {
				msg, err := getMsg(0)
				if err != nil {
					t.Fatalf("could not get message: %v", err)
				}
				body = msg
			}

			var p ParameterGetter
			if tc.ssm != nil {
				p = tc.ssm
			}

			crm := &mockCRM{contactID: "101"}
			var tokens []string
			res, err := newTestHandler(crm, p, &tokens).Handle(context.Background(), &events.APIGatewayProxyRequest{Body: body})

			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected error %v, got: %v", tc.err, err)
				}
				if res.StatusCode != http.StatusInternalServerError {
					t.Errorf("expected status 500, got %v", res.StatusCode)
				}
				if len(tokens) != 0 || len(crm.calls) != 0 {
					t.Errorf("expected no remote calls, got %v", crm.calls)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff([]string{tc.want}, tokens); diff != "" {
				t.Errorf("tokens mismatch (-want +got):\n%v", diff)
			}
			if tc.ssm != nil && tc.token == "" {
				if diff := cmp.Diff([]string{tc.parameter}, tc.ssm.names); diff != "" {
					t.Errorf("parameter names mismatch (-want +got):\n%v", diff)
				}
			}
		})
	}
}

func TestHubSpot(t *testing.T) {

	t.Setenv("HUBSPOT_URL", "://bad")
	if _, err := HubSpot("pat-123"); err == nil {
		t.Errorf("expected an error for a bad HubSpot URL")
	}

	t.Setenv("HUBSPOT_URL", "")
	c, err := HubSpot("pat-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := c.(*hubspot.Client); !ok {
		t.Errorf("expected a HubSpot client, got %T", c)
	}
}
