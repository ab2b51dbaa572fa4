// Command lambda serves the API from AWS Lambda behind a Function URL or API Gateway.
package main

import (
	"nebs-backend/bootstrap"

	"github.com/akrylysov/algnhsa"
	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	lambda.StartHandler(algnhsa.New(bootstrap.Dispatcher(), nil))
}
