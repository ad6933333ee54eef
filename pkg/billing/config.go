package billing

type Config struct {
	Provider          string `env:"BILLING_PROVIDER" envDefault:"stripe"`
	StripeSecretKey   string `env:"STRIPE_SECRET_KEY"`
	StripePriceID     string `env:"STRIPE_PRICE_ID"`
	PaddleAPIKey      string `env:"PADDLE_API_KEY"`
	PaddleEnvironment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	PaddlePriceID     string `env:"PADDLE_PRICE_ID"`
}

// DefaultPriceID returns the configured price of the selected provider.
func (c Config) DefaultPriceID() string {
	if c.Provider == ProviderPaddle {
		return c.PaddlePriceID
	}
	return c.StripePriceID
}
