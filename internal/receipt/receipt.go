// internal/receipt/receipt.go
package receipt

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"posterminal/internal/cart"
)

// Data is everything a printable receipt shows. Building and rendering it
// is a pure formatting step: a print failure is not a sale failure.
type Data struct {
	Number        string
	Date          time.Time
	Lines         []cart.Line
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Tendered      decimal.Decimal
	Change        decimal.Decimal
	PaymentMethod string
}

// NewNumber issues a fresh receipt number.
func NewNumber() string {
	return uuid.NewString()
}

var receiptTmpl = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"formatCurrency": func(amount decimal.Decimal) string {
		return fmt.Sprintf("$%s", amount.StringFixed(2))
	},
	"formatQuantity": func(qty decimal.Decimal) string {
		return qty.String()
	},
	"formatDateTime": func(t time.Time) string {
		return t.Local().Format("Jan 2, 2006 3:04pm")
	},
}).Parse(`<!DOCTYPE html>
<html>
<head><title>Receipt {{.Number}}</title></head>
<body onload="window.print()">
  <h2>Sales Receipt</h2>
  <p>Receipt: {{.Number}}<br>
     Date: {{formatDateTime .Date}}<br>
     Payment: {{.PaymentMethod}}</p>
  <table>
    <tr><th>Item</th><th>Qty</th><th>Price</th><th>Amount</th></tr>
    {{range .Lines}}
    <tr>
      <td>{{.Name}}</td>
      <td>{{formatQuantity .Quantity}}</td>
      <td>{{formatCurrency .UnitPrice}}</td>
      <td>{{formatCurrency .LineTotal}}</td>
    </tr>
    {{end}}
  </table>
  <p>Subtotal: {{formatCurrency .Subtotal}}<br>
     Tax: {{formatCurrency .Tax}}<br>
     <strong>Total: {{formatCurrency .Total}}</strong><br>
     Tendered: {{formatCurrency .Tendered}}<br>
     Change: {{formatCurrency .Change}}</p>
  <p>Thank you for your purchase!</p>
</body>
</html>
`))

// Render produces the printable HTML document.
func Render(d Data) (string, error) {
	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("rendering receipt %s: %w", d.Number, err)
	}
	return buf.String(), nil
}
