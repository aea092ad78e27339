package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Block extracts one semantic region of the detail page. Extract writes what it
// finds into out and returns an error only when the region itself is unusable;
// a missing label inside a present region leaves that field null.
type Block struct {
	Name    string
	Fields  []string
	Extract func(l *Locator, out Fields) error
}

// Fields collects one block's output.
type Fields map[string]string

// Set records a non-empty value.
func (f Fields) Set(field, value string) {
	if value = Normalize(value); value != "" {
		f[field] = value
	}
}

// SetList records a list value joined with "; ".
func (f Fields) SetList(field string, values []string) {
	f.Set(field, strings.Join(values, ListSeparator))
}

// ListSeparator joins list-valued fields.
const ListSeparator = "; "

type labelField struct {
	field  string
	anchor Anchor
}

// labelValue reads the Bootstrap column following the label's column.
var labelValue = ClosestNext("div[class*='col']", "")

func readLabels(l *Locator, out Fields, pairs ...labelField) {
	readLabelsWith(l, out, labelValue, pairs...)
}

// readLabelsWith reads every pair through resolve. A value that lands on
// another pair's label is left null.
func readLabelsWith(l *Locator, out Fields, resolve Resolver, pairs ...labelField) {
	anchors := make([]Anchor, len(pairs))
	for i, p := range pairs {
		anchors[i] = p.anchor
	}
	for _, p := range pairs {
		if v, err := l.Value(p.anchor, resolve, anchors...); err == nil {
			out.Set(p.field, v)
		}
	}
}

type columnField struct {
	field  string
	header string
}

// readColumns reads each header of one table into a joined list field.
func readColumns(t *Table, out Fields, cols ...columnField) {
	for _, c := range cols {
		if vals, err := t.Values(c.header); err == nil {
			out.SetList(c.field, vals)
		}
	}
}

func prefix(text string) Anchor {
	return Anchor{Selector: "label", Text: text, Match: MatchPrefix}
}

func yesNo(ok bool) string {
	if ok {
		return "Yes"
	}
	return "No"
}

// DefaultBlocks returns the sub-extractors covering every record column.
func DefaultBlocks() []Block {
	return []Block{
		registrationBlock(),
		projectDetailsBlock(),
		planningAuthorityBlock(),
		landBlock(),
		commencementBlock(),
		addressBlock("project_address", "Project Address", "project_address"),
		promoterDetailsBlock(),
		addressBlock("promoter_address", "Promoter Official Communication Address", "promoter_official_communication_address"),
		professionalsBlock(),
		formDatesBlock(),
		landownersBlock(),
		investorsBlock(),
		litigationBlock(),
		buildingsBlock(),
		apartmentSummaryBlock(),
		parkingBlock(),
		bankBlock(),
		complaintsBlock(),
		agentsBlock(),
	}
}

// registrationAnchor matches the registration header labels, which all
// carry for="yourUsername".
func registrationAnchor(text string) Anchor {
	return Anchor{Selector: "label[for='yourUsername']", Text: text, Match: MatchContains}
}

func registrationBlock() Block {
	regNo := registrationAnchor("Registration Number")
	regDate := registrationAnchor("Date of Registration")
	return Block{
		Name:   "registration",
		Fields: []string{"registration_number", "date_of_registration"},
		Extract: func(l *Locator, out Fields) error {
			if !l.Has(regNo) && !l.Has(regDate) {
				return fmt.Errorf("%w: registration header", ErrSectionNotFound)
			}
			readLabelsWith(l, out, NextSibling("label"),
				labelField{"registration_number", regNo},
				labelField{"date_of_registration", regDate},
			)
			return nil
		},
	}
}

// detailLabel is a bare <div> holding exactly the label text, followed by
// the <div> holding the value.
func detailLabel(text string) Anchor {
	return Anchor{Selector: "div", Text: text, Match: MatchExact}
}

func projectDetailsBlock() Block {
	pairs := []labelField{
		{"project_name", detailLabel("Project Name")},
		{"project_type", detailLabel("Project Type")},
		{"project_location", detailLabel("Project Location")},
		{"proposed_completion_date", detailLabel("Proposed Completion Date (Original)")},
		{"extension_date", detailLabel("Proposed Completion Date (Revised)")},
	}
	status := Anchor{Selector: "span", Text: "Project Status", Match: MatchExact}
	return Block{
		Name: "project_details",
		Fields: []string{
			"project_name", "project_type", "project_location",
			"proposed_completion_date", "extension_date", "project_status",
		},
		Extract: func(l *Locator, out Fields) error {
			if !l.Has(pairs[0].anchor) {
				return fmt.Errorf("%w: project details", ErrSectionNotFound)
			}
			readLabelsWith(l, out, NextSibling("div"), pairs...)

			// The status label sits two levels down in its own column.
			others := make([]Anchor, len(pairs))
			for i, p := range pairs {
				others[i] = p.anchor
			}
			if v, err := l.Value(status, AncestorNext(2, "div", "span"), others...); err == nil {
				out.Set("project_status", v)
			}
			return nil
		},
	}
}

func planningAuthorityBlock() Block {
	authority := Anchor{Selector: "span", Text: "Planning Authority", Match: MatchExact}
	fullName := Anchor{Selector: "span", Text: "Full Name of the Planning Authority", Match: MatchPrefix}
	return Block{
		Name:   "planning_authority",
		Fields: []string{"planning_authority", "full_name_of_planning_authority"},
		Extract: func(l *Locator, out Fields) error {
			if !l.Has(authority) && !l.Has(fullName) {
				return fmt.Errorf("%w: planning authority", ErrSectionNotFound)
			}
			// Each label column is followed by the column holding its <p> value.
			readLabelsWith(l, out, ClosestNext("div.col-12.text-font", "p"),
				labelField{"planning_authority", authority},
				labelField{"full_name_of_planning_authority", fullName},
			)
			return nil
		},
	}
}

// landLabel matches the label inside one white-box tile of the land card.
func landLabel(text string) Anchor {
	return Anchor{Selector: "div.white-box label", Text: text, Match: MatchContains}
}

func landBlock() Block {
	return Block{
		Name: "land",
		Fields: []string{
			"final_plot_bearing", "total_land_area", "land_area_applied",
			"permissible_builtup", "sanctioned_builtup", "aggregate_open_space",
		},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Land Area & Address Details")
			if err != nil {
				return err
			}
			readLabelsWith(sec, out, Closest("div.white-box", "div.text-font.f-w-700"),
				labelField{"final_plot_bearing", landLabel("Final Plot bearing No/CTS Number/Survey Number")},
				labelField{"total_land_area", landLabel("Total Land Area of Approved Layout (Sq. Mts.)")},
				labelField{"land_area_applied", landLabel("Land Area for Project Applied for this Registration (Sq. Mts)")},
				labelField{"permissible_builtup", landLabel("Permissible Built-up Area")},
				labelField{"sanctioned_builtup", landLabel("Sanctioned Built-up Area of the Project applied for Registration")},
				labelField{"aggregate_open_space", landLabel("Aggregate area(in sq. mts) of recreational open space as per Layout / DP Remarks")},
			)
			return nil
		},
	}
}

func commencementBlock() Block {
	return Block{
		Name:   "commencement_certificate",
		Fields: []string{"CC/NA Order Issued to", "CC/NA Order in the name of"},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Commencement Certificate")
			if err != nil {
				return err
			}
			t, err := sec.Table("CC/NA Order")
			if err != nil {
				return err
			}
			readColumns(t, out,
				columnField{"CC/NA Order Issued to", "CC/NA Order Issued to"},
				columnField{"CC/NA Order in the name of", "CC/NA Order in the name of"},
			)
			return nil
		},
	}
}

// addressBlock reads the five address labels shared by the project and promoter cards.
func addressBlock(name, title, fieldPrefix string) Block {
	f := func(suffix string) string { return fieldPrefix + "_" + suffix }
	return Block{
		Name:   name,
		Fields: []string{f("state_ut"), f("district"), f("taluka"), f("village"), f("pin_code")},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section(title)
			if err != nil {
				return err
			}
			readLabels(sec, out,
				labelField{f("state_ut"), Label("State/UT")},
				labelField{f("district"), Label("District")},
				labelField{f("taluka"), Label("Taluka")},
				labelField{f("village"), Label("Village")},
				labelField{f("pin_code"), Label("Pin Code")},
			)
			return nil
		},
	}
}

func promoterDetailsBlock() Block {
	return Block{
		Name: "promoter_details",
		Fields: []string{
			"promoter_details", "partner_name", "partner_designation",
			"promoter_past_project_names", "promoter_past_project_statuses",
			"promoter_past_litigation_statuses", "authorised_signatory_names",
			"authorised_signatory_designations", "spa_name", "spa_designation",
		},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Promoter Details")
			if err != nil {
				return err
			}
			for _, a := range []Anchor{Label("Name of Organization"), Label("Promoter Name"), Label("Name")} {
				if v, err := sec.Value(a, labelValue); err == nil {
					out.Set("promoter_details", v)
					break
				}
			}

			if partners, err := l.Section("Partner Details"); err == nil {
				if t, err := partners.Table("Name"); err == nil {
					readColumns(t, out,
						columnField{"partner_name", "Name"},
						columnField{"partner_designation", "Designation"},
					)
				}
			}
			if past, err := l.Section("Past Experience"); err == nil {
				if t, err := past.Table("Project Name"); err == nil {
					readColumns(t, out,
						columnField{"promoter_past_project_names", "Project Name"},
						columnField{"promoter_past_project_statuses", "Current Status"},
						columnField{"promoter_past_litigation_statuses", "Litigation"},
					)
				}
			}
			if signatories, err := l.Section("Authorised Signatory"); err == nil {
				if t, err := signatories.Table("Name"); err == nil {
					readColumns(t, out,
						columnField{"authorised_signatory_names", "Name"},
						columnField{"authorised_signatory_designations", "Designation"},
					)
				}
			}
			if spa, err := l.Section("Single Point of Contact"); err == nil {
				readLabels(spa, out,
					labelField{"spa_name", Label("Name")},
					labelField{"spa_designation", Label("Designation")},
				)
			}
			return nil
		},
	}
}

func professionalsBlock() Block {
	tabs := []struct{ field, tab string }{
		{"architect_names", "Architect"},
		{"engineer_names", "Engineer"},
		{"chartered_accountant_names", "Chartered Accountant"},
		{"other_professional_names", "Other"},
	}
	fields := make([]string, len(tabs))
	for i, t := range tabs {
		fields[i] = t.field
	}
	return Block{
		Name:   "professionals",
		Fields: fields,
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Professional")
			if err != nil {
				return err
			}
			var errs []error
			for _, t := range tabs {
				pane, err := sec.Tab(t.tab)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if names, err := pane.TableColumn("Name"); err == nil {
					out.SetList(t.field, names)
				}
			}
			if len(errs) == len(tabs) {
				return errors.Join(errs...)
			}
			return nil
		},
	}
}

var formPatterns = map[string]*regexp.Regexp{
	"latest_form1_date": regexp.MustCompile(`(?i)\bform\s*-?\s*1\b`),
	"latest_form2_date": regexp.MustCompile(`(?i)\bform\s*-?\s*2\b`),
	"latest_form5_date": regexp.MustCompile(`(?i)\bform\s*-?\s*5\b`),
}

var documentDateLayouts = []string{"02/01/2006", "02-01-2006", "2006-01-02", "02-Jan-2006"}

func parseDocumentDate(s string) (time.Time, bool) {
	for _, layout := range documentDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// latestDate returns the newest parseable date, or the last raw value when none parse.
func latestDate(dates []string) string {
	var (
		best    time.Time
		bestRaw string
		lastRaw string
	)
	for _, d := range dates {
		if d == "" {
			continue
		}
		lastRaw = d
		if t, ok := parseDocumentDate(d); ok && (bestRaw == "" || t.After(best)) {
			best, bestRaw = t, d
		}
	}
	if bestRaw != "" {
		return bestRaw
	}
	return lastRaw
}

func formDatesBlock() Block {
	return Block{
		Name: "form_dates",
		Fields: []string{
			"sro_name", "sro_document_name", "latest_form1_date", "latest_form2_date",
			"latest_form5_date", "has_occupancy_certificate",
		},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Documents")
			if err != nil {
				return err
			}
			readLabels(sec, out,
				labelField{"sro_name", Label("SRO Name")},
				labelField{"sro_document_name", Label("Document Name")},
			)

			t, err := sec.Table("Document Type")
			if err != nil {
				return err
			}
			typeIdx, dateIdx := t.Column("Document Type"), t.Column("Uploaded")
			dates := make(map[string][]string, len(formPatterns))
			occupancy := false
			for _, row := range t.Rows {
				if typeIdx >= len(row) {
					continue
				}
				docType := row[typeIdx]
				if strings.Contains(strings.ToLower(docType), "occupancy certificate") {
					occupancy = true
				}
				if dateIdx < 0 || dateIdx >= len(row) {
					continue
				}
				for field, re := range formPatterns {
					if re.MatchString(docType) {
						dates[field] = append(dates[field], row[dateIdx])
					}
				}
			}
			for field, ds := range dates {
				out.Set(field, latestDate(ds))
			}
			out.Set("has_occupancy_certificate", yesNo(occupancy))
			return nil
		},
	}
}

func landownersBlock() Block {
	return Block{
		Name: "landowners",
		Fields: []string{
			"promoter_is_landowner", "has_other_landowners", "landowner_names",
			"landowner_types", "landowner_share_types",
		},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Land Owner")
			if err != nil {
				return err
			}
			readLabels(sec, out,
				labelField{"promoter_is_landowner", prefix("Is the Promoter a Land Owner")},
				labelField{"has_other_landowners", prefix("Are there other Land Owners")},
			)
			if t, err := sec.Table("Land Owner Name"); err == nil {
				readColumns(t, out,
					columnField{"landowner_names", "Land Owner Name"},
					columnField{"landowner_types", "Land Owner Type"},
					columnField{"landowner_share_types", "Share Type"},
				)
			}
			return nil
		},
	}
}

func investorsBlock() Block {
	return Block{
		Name:   "investors",
		Fields: []string{"are_there_investors_other_than_promoter"},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Investor")
			if err != nil {
				return err
			}
			v, err := sec.Value(prefix("Are there any Investors"), labelValue)
			if err != nil {
				return err
			}
			out.Set("are_there_investors_other_than_promoter", v)
			return nil
		},
	}
}

// countRows counts case rows; a card without a case table has none.
func countRows(sec *Locator, header string) (*Table, string) {
	t, err := sec.Table(header)
	if err != nil {
		return nil, "0"
	}
	return t, strconv.Itoa(len(t.Rows))
}

func litigationBlock() Block {
	return Block{
		Name:   "litigation",
		Fields: []string{"litigation_against_project_count"},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Litigation")
			if err != nil {
				return err
			}
			_, n := countRows(sec, "Case")
			out.Set("litigation_against_project_count", n)
			return nil
		},
	}
}

func buildingsBlock() Block {
	return Block{
		Name: "buildings",
		Fields: []string{
			"building_identification_plan", "wing_identification_plan", "sanctioned_floors",
			"sanctioned_habitable_floors", "sanctioned_apartments", "cc_issued_floors",
			"view_document_available",
		},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Building Details")
			if err != nil {
				return err
			}
			t, err := sec.Table("Identification of Building")
			if err != nil {
				return err
			}
			readColumns(t, out,
				columnField{"building_identification_plan", "Identification of Building"},
				columnField{"wing_identification_plan", "Identification of Wing"},
				columnField{"sanctioned_floors", "Number of Sanctioned Floors"},
				columnField{"sanctioned_habitable_floors", "Sanctioned Habitable Floors"},
				columnField{"sanctioned_apartments", "Sanctioned Apartments"},
				columnField{"cc_issued_floors", "CC Issued"},
			)
			view := sec.Scope().Find("table a").FilterFunction(func(_ int, s *goquery.Selection) bool {
				return strings.EqualFold(Normalize(s.Text()), "view")
			})
			out.Set("view_document_available", yesNo(view.Length() > 0))
			return nil
		},
	}
}

func apartmentSummaryBlock() Block {
	cols := []columnField{
		{"summary_identification_building_wing", "Identification of Building/Wing"},
		{"summary_identification_wing_plan", "Identification of Wing as per Sanctioned Plan"},
		{"summary_floor_type", "Floor Type"},
		{"summary_total_no_of_residential_apartments", "Total No. of Residential Apartments"},
		{"summary_total_no_of_non_residential_apartments", "Total No. of Non-Residential Apartments"},
		{"summary_total_no_of_apartments_nr_r", "Total No. of Apartments (NR+R)"},
		{"summary_total_no_of_sold_units", "Total No. of Sold Units"},
		{"summary_total_no_of_unsold_units", "Total No. of Unsold Units"},
		{"summary_total_no_of_booked", "Total No. of Booked"},
		{"summary_total_no_of_rehab_units", "Total No. of Rehab Units"},
		{"summary_total_no_of_mortgage", "Total No. of Mortgage"},
		{"summary_total_no_of_reservation", "Total No. of Reservation"},
		{"summary_total_no_of_land_owner_investor_share_sale", "Total No. of Land Owner/Investor Share (Sale)"},
		{"summary_total_no_of_land_owner_investor_share_not_for_sale", "Total No. of Land Owner/Investor Share (Not for Sale)"},
	}
	fields := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		fields = append(fields, c.field)
	}
	fields = append(fields, "total_no_of_apartments")

	return Block{
		Name:   "apartment_summary",
		Fields: fields,
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Summary of Apartments")
			if err != nil {
				return err
			}
			readLabels(sec, out, labelField{"total_no_of_apartments", prefix("Total Number of Apartments")})
			t, err := sec.Table("Floor Type")
			if err != nil {
				return err
			}
			readColumns(t, out, cols...)
			return nil
		},
	}
}

var leadingNumber = regexp.MustCompile(`-?\d+`)

func parkingBlock() Block {
	return Block{
		Name:   "parking",
		Fields: []string{"open_space_parking_total", "closed_space_parking_total"},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Parking")
			if err != nil {
				return err
			}
			t, err := sec.Table("Parking Type")
			if err != nil {
				return err
			}
			typeIdx, totalIdx := t.Column("Parking Type"), t.Column("Total")
			if totalIdx < 0 {
				return ErrColumnNotFound
			}
			var open, closed int
			var sawOpen, sawClosed bool
			for _, row := range t.Rows {
				if typeIdx >= len(row) || totalIdx >= len(row) {
					continue
				}
				n, err := strconv.Atoi(leadingNumber.FindString(row[totalIdx]))
				if err != nil {
					continue
				}
				kind := strings.ToLower(row[typeIdx])
				switch {
				case strings.Contains(kind, "open"):
					open += n
					sawOpen = true
				case strings.Contains(kind, "closed"), strings.Contains(kind, "covered"):
					closed += n
					sawClosed = true
				}
			}
			if sawOpen {
				out.Set("open_space_parking_total", strconv.Itoa(open))
			}
			if sawClosed {
				out.Set("closed_space_parking_total", strconv.Itoa(closed))
			}
			return nil
		},
	}
}

func bankBlock() Block {
	return Block{
		Name:   "bank",
		Fields: []string{"bank_name", "ifsc_code", "bank_address"},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Bank Details")
			if err != nil {
				return err
			}
			readLabels(sec, out,
				labelField{"bank_name", Label("Bank Name")},
				labelField{"ifsc_code", Label("IFSC Code")},
				labelField{"bank_address", Label("Bank Address")},
			)
			return nil
		},
	}
}

func complaintsBlock() Block {
	return Block{
		Name:   "complaints",
		Fields: []string{"complaint_count", "complaint_numbers"},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Complaint")
			if err != nil {
				return err
			}
			t, n := countRows(sec, "Complaint No")
			out.Set("complaint_count", n)
			if t != nil {
				readColumns(t, out, columnField{"complaint_numbers", "Complaint No"})
			}
			return nil
		},
	}
}

func agentsBlock() Block {
	return Block{
		Name:   "agents",
		Fields: []string{"real_estate_agent_names", "maharera_certificate_nos"},
		Extract: func(l *Locator, out Fields) error {
			sec, err := l.Section("Real Estate Agent")
			if err != nil {
				return err
			}
			t, err := sec.Table("Certificate")
			if err != nil {
				// No agents registered against the project.
				return nil
			}
			readColumns(t, out,
				columnField{"real_estate_agent_names", "Name"},
				columnField{"maharera_certificate_nos", "Certificate"},
			)
			return nil
		},
	}
}
