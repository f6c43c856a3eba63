package dispatch

import (
	"strings"

	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
)

const (
	PlaceholderCustomerName = "{customer_name}"
	PlaceholderCartURL      = "{cart_url}"
	PlaceholderTotal        = "{total}"
	PlaceholderCurrency     = "{currency}"
)

// Render fills the template placeholders for one cart. When the template does not reference
// {cart_url} the URL is appended on its own line.
func Render(content string, cart cartdomain.Cart) string {
	replacer := strings.NewReplacer(
		PlaceholderCustomerName, cart.CustomerName,
		PlaceholderCartURL, cart.CartURL,
		PlaceholderTotal, cart.FormattedTotal(),
		PlaceholderCurrency, cart.Currency,
	)
	out := replacer.Replace(content)
	if !strings.Contains(content, PlaceholderCartURL) && cart.CartURL != "" {
		out = strings.TrimRight(out, "\n") + "\n" + cart.CartURL
	}
	return out
}
