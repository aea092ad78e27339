package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FieldProjectID is the first column of every record row.
const FieldProjectID = "project_id"

// RecordColumns is the fixed column order of the record table.
var RecordColumns = []string{
	FieldProjectID, "registration_number", "date_of_registration", "project_name",
	"project_type", "project_location", "proposed_completion_date",
	"extension_date", "project_status", "planning_authority",
	"full_name_of_planning_authority", "final_plot_bearing",
	"total_land_area", "land_area_applied", "permissible_builtup",
	"sanctioned_builtup", "aggregate_open_space", "CC/NA Order Issued to",
	"CC/NA Order in the name of", "project_address_state_ut",
	"project_address_district", "project_address_taluka",
	"project_address_village", "project_address_pin_code", "promoter_details",
	"promoter_official_communication_address_state_ut",
	"promoter_official_communication_address_district",
	"promoter_official_communication_address_taluka",
	"promoter_official_communication_address_village",
	"promoter_official_communication_address_pin_code", "partner_name",
	"partner_designation", "promoter_past_project_names",
	"promoter_past_project_statuses", "promoter_past_litigation_statuses",
	"authorised_signatory_names", "authorised_signatory_designations", "spa_name", "spa_designation",
	"architect_names", "engineer_names", "chartered_accountant_names", "other_professional_names",
	"sro_name", "sro_document_name", "latest_form1_date", "latest_form2_date", "latest_form5_date",
	"has_occupancy_certificate", "promoter_is_landowner", "has_other_landowners", "landowner_names",
	"landowner_types", "landowner_share_types", "building_identification_plan",
	"wing_identification_plan", "sanctioned_floors", "sanctioned_habitable_floors",
	"sanctioned_apartments", "cc_issued_floors", "view_document_available",
	"summary_identification_building_wing", "summary_identification_wing_plan",
	"summary_floor_type", "summary_total_no_of_residential_apartments",
	"summary_total_no_of_non_residential_apartments",
	"summary_total_no_of_apartments_nr_r", "summary_total_no_of_sold_units",
	"summary_total_no_of_unsold_units", "summary_total_no_of_booked",
	"summary_total_no_of_rehab_units", "summary_total_no_of_mortgage",
	"summary_total_no_of_reservation",
	"summary_total_no_of_land_owner_investor_share_sale",
	"summary_total_no_of_land_owner_investor_share_not_for_sale",
	"total_no_of_apartments", "are_there_investors_other_than_promoter",
	"litigation_against_project_count", "open_space_parking_total",
	"closed_space_parking_total", "bank_name", "ifsc_code", "bank_address",
	"complaint_count", "complaint_numbers", "real_estate_agent_names",
	"maharera_certificate_nos",
}

var columnIndex = func() map[string]int {
	idx := make(map[string]int, len(RecordColumns))
	for i, c := range RecordColumns {
		idx[c] = i
	}
	return idx
}()

// IsRecordColumn reports whether name is one of RecordColumns.
func IsRecordColumn(name string) bool {
	_, ok := columnIndex[name]
	return ok
}

// ProjectRecord is one harvested registry record. It is immutable once built;
// unset fields are null.
type ProjectRecord struct {
	projectID int
	values    []*string
}

// ProjectID returns the originating project ID.
func (r *ProjectRecord) ProjectID() int { return r.projectID }

// Get returns the value of a field and whether it was extracted.
func (r *ProjectRecord) Get(field string) (string, bool) {
	if field == FieldProjectID {
		return strconv.Itoa(r.projectID), true
	}
	i, ok := columnIndex[field]
	if !ok || r.values[i] == nil {
		return "", false
	}
	return *r.values[i], true
}

// Populated counts the extracted fields, excluding project_id.
func (r *ProjectRecord) Populated() int {
	n := 0
	for i, v := range r.values {
		if i != 0 && v != nil {
			n++
		}
	}
	return n
}

// Row returns the record's cells in RecordColumns order; null fields are empty.
func (r *ProjectRecord) Row() []string {
	row := make([]string, len(RecordColumns))
	row[0] = strconv.Itoa(r.projectID)
	for i := 1; i < len(row); i++ {
		if r.values[i] != nil {
			row[i] = *r.values[i]
		}
	}
	return row
}

// MarshalJSON emits every column in order, null for fields that were not extracted.
func (r *ProjectRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range RecordColumns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(col)
		buf.Write(key)
		buf.WriteByte(':')
		switch {
		case i == 0:
			buf.WriteString(strconv.Itoa(r.projectID))
		case r.values[i] == nil:
			buf.WriteString("null")
		default:
			val, err := json.Marshal(*r.values[i])
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a record produced by MarshalJSON; used by the result cache.
func (r *ProjectRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	idRaw, ok := raw[FieldProjectID]
	if !ok {
		return fmt.Errorf("record without %s", FieldProjectID)
	}
	var id int
	if err := json.Unmarshal(idRaw, &id); err != nil {
		return fmt.Errorf("decode %s: %w", FieldProjectID, err)
	}
	b := NewRecordBuilder(id)
	for field, v := range raw {
		if field == FieldProjectID {
			continue
		}
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("decode %s: %w", field, err)
		}
		if s != nil {
			b.Set(field, *s)
		}
	}
	*r = *b.Build()
	return nil
}

// RecordBuilder accumulates field values for one project. Not safe for concurrent use.
type RecordBuilder struct {
	projectID int
	values    []*string
}

// NewRecordBuilder starts a record for the given project.
func NewRecordBuilder(projectID int) *RecordBuilder {
	return &RecordBuilder{
		projectID: projectID,
		values:    make([]*string, len(RecordColumns)),
	}
}

// Set stores a value. Unknown fields and project_id are ignored and reported false.
func (b *RecordBuilder) Set(field, value string) bool {
	i, ok := columnIndex[field]
	if !ok || i == 0 {
		return false
	}
	v := value
	b.values[i] = &v
	return true
}

// Build returns the immutable record. The builder must not be reused.
func (b *RecordBuilder) Build() *ProjectRecord {
	values := make([]*string, len(b.values))
	copy(values, b.values)
	return &ProjectRecord{projectID: b.projectID, values: values}
}
