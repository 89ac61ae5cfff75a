package notesync

import (
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ssm"
)

// ErrMissingCredential means no HubSpot token is configured
var ErrMissingCredential = errors.New("please define HUBSPOT_TOKEN as an env var")

// ParameterGetter is an abstraction for a SSM client
type ParameterGetter interface {
	GetParameter(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error)
}

// token returns the HubSpot token, from HUBSPOT_TOKEN or the SSM parameter named by HUBSPOT_TOKEN_PARAMETER
func (h *Handler) token() (string, error) {

	if tok, ok := os.LookupEnv("HUBSPOT_TOKEN"); ok && tok != "" {
		return tok, nil
	}

	name, ok := os.LookupEnv("HUBSPOT_TOKEN_PARAMETER")
	if !ok || name == "" || h.ssm == nil {
		return "", ErrMissingCredential
	}

	out, err := h.ssm.GetParameter(&ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("could not get parameter %v: %v: %w", name, err, ErrMissingCredential)
	}
	if out.Parameter == nil || aws.StringValue(out.Parameter.Value) == "" {
		return "", fmt.Errorf("empty parameter %v: %w", name, ErrMissingCredential)
	}

	return aws.StringValue(out.Parameter.Value), nil
}
