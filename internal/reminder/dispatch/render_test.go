package dispatch

import (
	"testing"

	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	cart := cartdomain.Cart{
		CustomerName: "Sara",
		CartURL:      "https://shop.mysalla.com/cart",
		TotalAmount:  15050,
		Currency:     "SAR",
	}

	tests := []struct {
		name    string
		content string
		cart    cartdomain.Cart
		want    string
	}{
		{
			name:    "all placeholders",
			content: "Hi {customer_name}, {total} {currency} waiting: {cart_url}",
			cart:    cart,
			want:    "Hi Sara, 150.50 SAR waiting: https://shop.mysalla.com/cart",
		},
		{
			name:    "url appended when not referenced",
			content: "Hi {customer_name}, come back!\n",
			cart:    cart,
			want:    "Hi Sara, come back!\nhttps://shop.mysalla.com/cart",
		},
		{
			name:    "no url to append",
			content: "Hi {customer_name}",
			cart:    cartdomain.Cart{CustomerName: "Customer"},
			want:    "Hi Customer",
		},
		{
			name:    "repeated placeholder",
			content: "{customer_name} {customer_name} {cart_url}",
			cart:    cart,
			want:    "Sara Sara https://shop.mysalla.com/cart",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.content, tt.cart))
		})
	}
}
