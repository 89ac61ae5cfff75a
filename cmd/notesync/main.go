// Function notesync starts a SSM session and hands over to package notesync.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"

	"github.com/UKHomeOffice/notesync/internal/logging"
	"github.com/UKHomeOffice/notesync/pkg/notesync"
)

var sess *session.Session
var essm *ssm.SSM

func init() {
	sess = session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	essm = ssm.New(sess, &aws.Config{Region: aws.String(os.Getenv("AWS_REGION"))})
	logging.Setup()
}

func handler(ctx context.Context, req *events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	return notesync.NewHandler(notesync.HubSpot, essm, nil).Handle(ctx, req)
}

func main() {
	lambda.Start(handler)
}
