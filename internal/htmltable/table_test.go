package htmltable

import (
	"net/url"
	"strings"
	"testing"
)

const listing = `<html><body>
<table id="nav"><tr><td><a href="/home">Home</a></td></tr></table>
<table class="views-table">
  <thead>
    <tr><th>Organization Name</th><th>Date(s) of Breach</th><th>Reported Date</th></tr>
  </thead>
  <tbody>
    <tr>
      <td><a href="/privacy/databreach/reports/sb24-581234"> Acme&nbsp;Health,
          Inc.</a></td>
      <td>01/17/2024<br>01/19/2024</td>
      <td>02/01/2024</td>
    </tr>
    <tr><td></td><td></td><td></td></tr>
    <tr>
      <td>Globex LLC</td>
      <td>n/a</td>
      <td><a href="mailto:privacy@globex.example">contact</a></td>
    </tr>
  </tbody>
</table>
</body></html>`

func TestParse(t *testing.T) {
	base, _ := url.Parse("https://oag.example.gov/privacy/databreach/list")
	items, err := Parse(strings.NewReader(listing), base, 1)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(items), items)
	}

	first := items[0]
	if first.SourceID != 1 {
		t.Errorf("SourceID = %d", first.SourceID)
	}
	if first.OriginURL != "https://oag.example.gov/privacy/databreach/reports/sb24-581234" {
		t.Errorf("OriginURL = %q", first.OriginURL)
	}
	if got := first.Fields["Organization Name"]; got != "Acme Health, Inc." {
		t.Errorf("organization = %q", got)
	}
	if got := first.Fields["Date(s) of Breach"]; got != "01/17/2024 01/19/2024" {
		t.Errorf("breach dates = %q", got)
	}

	second := items[1]
	if second.OriginURL != "" {
		t.Errorf("mailto link should not become an origin url, got %q", second.OriginURL)
	}
	if second.Fields["Organization Name"] != "Globex LLC" || second.Fields["Reported Date"] != "contact" {
		t.Errorf("fields = %v", second.Fields)
	}
}

func TestParseHeaderWithoutThead(t *testing.T) {
	doc := `<table><tr><th>Name</th><th>Affected</th></tr><tr><td>Initech</td><td>1,200</td></tr></table>`
	items, err := Parse(strings.NewReader(doc), nil, 4)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 1 || items[0].Fields["Affected"] != "1,200" || items[0].OriginURL != "" {
		t.Errorf("items = %+v", items)
	}
}

func TestParseNoTable(t *testing.T) {
	if _, err := Parse(strings.NewReader("<p>nothing here</p>"), nil, 1); err == nil {
		t.Error("expected error without a table")
	}
}
