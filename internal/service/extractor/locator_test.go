package extractor

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const locatorPage = `<html><body>
<div class="form-card">
  <div class="card-header">General</div>
  <table class="meta">
    <tr><th>Promoter Type</th><td>Partnership</td><td>ignored</td></tr>
  </table>
  <div class="form-group">
    <label>Project Website :</label>
    <input type="text" value="  https://example.org  ">
  </div>
  <div class="form-group">
    <label>Phase *</label>
    <select><option>1</option><option selected>2</option></select>
  </div>
  <div class="row">
    <div class="col-md-4"><label>Empty Value</label></div>
    <div class="col-md-8">   </div>
  </div>
</div>
</body></html>`

func newTestLocator(t *testing.T, html string) *Locator {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return NewLocator(doc)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a\n\t b   c "))
	assert.Equal(t, "", Normalize(" \n "))
}

func TestLocatorResolvers(t *testing.T) {
	l := newTestLocator(t, locatorPage)

	v, err := l.Value(Anchor{Selector: "th", Text: "Promoter Type"}, NextSibling("td"))
	require.NoError(t, err)
	assert.Equal(t, "Partnership", v)

	v, err = l.Value(Label("Project Website"), Closest("div.form-group", "input"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", v)

	v, err = l.Value(Label("Phase"), Closest("div.form-group", "select"))
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	v, err = l.Value(Anchor{Selector: "label", Text: "website", Match: MatchContains}, Closest("div.form-group", "input"))
	require.NoError(t, err)
	assert.Equal(t, "https://example.org", v)
}

func TestLocatorMisses(t *testing.T) {
	l := newTestLocator(t, locatorPage)

	_, err := l.Value(Label("Missing"), labelValue)
	assert.ErrorIs(t, err, ErrAnchorNotFound)

	_, err = l.Value(Label("Empty Value"), labelValue)
	assert.ErrorIs(t, err, ErrValueNotFound)

	_, err = l.Value(Label("Project Website"), NextSibling("span"))
	assert.ErrorIs(t, err, ErrValueNotFound)

	_, err = l.Section("Bank Details")
	assert.ErrorIs(t, err, ErrSectionNotFound)

	_, err = l.Tab("Architect")
	assert.ErrorIs(t, err, ErrTabNotFound)

	_, err = l.TableColumn("Complaint No")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestSectionScopesLookups(t *testing.T) {
	l := newTestLocator(t, loadFixture(t))

	project, err := l.Section("Project Address")
	require.NoError(t, err)
	promoter, err := l.Section("Promoter Official Communication Address")
	require.NoError(t, err)

	a, err := project.Value(Label("District"), labelValue)
	require.NoError(t, err)
	b, err := promoter.Value(Label("District"), labelValue)
	require.NoError(t, err)
	assert.Equal(t, "Mumbai Suburban", a)
	assert.Equal(t, "Mumbai City", b)
}

func TestTabReadsHiddenPanes(t *testing.T) {
	l := newTestLocator(t, loadFixture(t))

	sec, err := l.Section("Professional")
	require.NoError(t, err)

	pane, err := sec.Tab("Chartered Accountant")
	require.NoError(t, err)
	names, err := pane.TableColumn("Name")
	require.NoError(t, err)
	assert.Equal(t, []string{"M. Joshi & Co."}, names)

	pane, err = sec.Tab("Other")
	require.NoError(t, err)
	names, err = pane.TableColumn("Name")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestTableColumnPrefersExactHeader(t *testing.T) {
	l := newTestLocator(t, loadFixture(t))

	sec, err := l.Section("Summary of Apartments")
	require.NoError(t, err)
	tbl, err := sec.Table("Floor Type")
	require.NoError(t, err)

	res, err := tbl.Values("Total No. of Residential Apartments")
	require.NoError(t, err)
	assert.Equal(t, []string{"76", "64"}, res)

	sale, err := tbl.Values("Total No. of Land Owner/Investor Share (Sale)")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "0"}, sale)
}

func TestParseDocumentConvertsCharset(t *testing.T) {
	latin1 := "<html><head><meta charset=\"iso-8859-1\"></head><body><p>Caf\xe9</p></body></html>"

	doc, err := ParseDocument(strings.NewReader(latin1), "")
	require.NoError(t, err)
	assert.Equal(t, "Café", doc.Find("p").Text())
}

func TestValueSeparatesChildText(t *testing.T) {
	l := newTestLocator(t, `<html><body><div class="form-card">
		<div class="row"><div class="col-md-3"><label>Bank Address</label></div>
		<div class="col-md-9"><span>Shop 4,</span><span>Andheri East</span><br>Mumbai</div></div>
	</div></body></html>`)

	v, err := l.Value(Label("Bank Address"), labelValue)
	require.NoError(t, err)
	assert.Equal(t, "Shop 4, Andheri East Mumbai", v)
}

func TestValueRejectsNeighbouringLabel(t *testing.T) {
	l := newTestLocator(t, `<html><body>
		<label class="k">Registration Number</label><label class="k">Date of Registration</label><label>14/08/2017</label>
	</body></html>`)
	regNo := Anchor{Selector: "label.k", Text: "Registration Number"}
	regDate := Anchor{Selector: "label.k", Text: "Date of Registration"}

	_, err := l.Value(regNo, NextSibling("label"), regDate)
	assert.ErrorIs(t, err, ErrValueNotFound)

	v, err := l.Value(regDate, NextSibling("label"), regNo)
	require.NoError(t, err)
	assert.Equal(t, "14/08/2017", v)
}

func TestFindPrefersInnermostNode(t *testing.T) {
	l := newTestLocator(t, `<html><body>
		<div class="wrap"><div>Project Type</div></div><div>Commercial</div>
	</body></html>`)

	node, err := l.Find(Anchor{Selector: "div", Text: "Project Type"})
	require.NoError(t, err)
	assert.False(t, node.HasClass("wrap"))

	_, err = l.Value(Anchor{Selector: "div", Text: "Project Type"}, NextSibling("div"))
	assert.ErrorIs(t, err, ErrValueNotFound)
}

func TestAncestorNext(t *testing.T) {
	l := newTestLocator(t, `<html><body><div class="row">
		<div class="col"><div><span>Project Status</span></div></div>
		<p>skipped</p>
		<div class="col"><div><span>Ongoing</span></div></div>
	</div></body></html>`)

	v, err := l.Value(Anchor{Selector: "span", Text: "Project Status"}, AncestorNext(2, "div", "span"))
	require.NoError(t, err)
	assert.Equal(t, "Ongoing", v)
}
