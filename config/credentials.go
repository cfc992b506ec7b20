package config

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ResolveKiteCredentials returns the broker API key and secret. In the
// "prod" environment both come decrypted from AWS SSM Parameter Store;
// otherwise the config file values are used as-is.
func (c *KiteConfig) ResolveKiteCredentials() (apiKey, apiSecret string) {
	if c.Environment != "prod" {
		return c.APIKey, c.APISecret
	}
	return getParameterStoreValue("BARCOLLECTOR_KITE_API_KEY", true),
		getParameterStoreValue("BARCOLLECTOR_KITE_API_SECRET", true)
}

func getParameterStoreValue(parameterName string, decrypt bool) string {
	baseCtx := context.Background()
	ctxWithTimeout, cancel := context.WithTimeout(baseCtx, 5*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctxWithTimeout)
	if err != nil {
		return ""
	}

	client := ssm.NewFromConfig(cfg)

	input := &ssm.GetParameterInput{
		Name:           &parameterName,
		WithDecryption: &decrypt,
	}

	result, err := client.GetParameter(ctxWithTimeout, input)
	if err != nil {
		return ""
	}

	if result.Parameter.Value == nil {
		return ""
	}

	return *result.Parameter.Value
}
