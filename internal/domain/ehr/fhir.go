package ehr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// fhirBundle is the slice of a FHIR R4 searchset bundle this client reads.
// Resources stay raw until the entry loop knows what to decode them as.
type fhirBundle struct {
	Entry []struct {
		Resource json.RawMessage `json:"resource"`
	} `json:"entry"`
}

type fhirObservation struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	Code         struct {
		Text   string `json:"text"`
		Coding []struct {
			Display string `json:"display"`
		} `json:"coding"`
	} `json:"code"`
	ValueQuantity *fhirQuantity `json:"valueQuantity"`
	Component     []struct {
		ValueQuantity *fhirQuantity `json:"valueQuantity"`
	} `json:"component"`
	EffectiveDateTime string `json:"effectiveDateTime"`
	Issued            string `json:"issued"`
}

type fhirQuantity struct {
	Value json.Number `json:"value"`
	Unit  string      `json:"unit"`
}

// VitalsClient reads vital-sign observations from a FHIR R4 server using a
// connection's bearer token.
type VitalsClient struct {
	http *http.Client
}

func NewVitalsClient() *VitalsClient {
	return &VitalsClient{http: &http.Client{Timeout: providerTimeout}}
}

// ResolvePatientID finds the patient the access token is scoped to by asking
// the FHIR server for the first visible Patient. It returns an empty string
// on any failure; resolution is best-effort and the caller decides whether a
// missing patient is fatal.
func (c *VitalsClient) ResolvePatientID(ctx context.Context, accessToken, fhirBaseURL string) string {
	body, err := c.get(ctx, accessToken, fhirBaseURL+"/Patient?_count=1")
	if err != nil {
		return ""
	}

	var bundle fhirBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return ""
	}
	if len(bundle.Entry) == 0 {
		return ""
	}

	var patient struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(bundle.Entry[0].Resource, &patient); err != nil {
		return ""
	}
	return patient.ID
}

// FetchVitals returns the patient's ten most recent vital-sign observations,
// newest first.
func (c *VitalsClient) FetchVitals(ctx context.Context, accessToken, fhirBaseURL, patientID string) ([]VitalRecord, error) {
	q := url.Values{}
	q.Set("category", "vital-signs")
	q.Set("patient", patientID)
	q.Set("_count", "10")
	q.Set("_sort", "-date")

	body, err := c.get(ctx, accessToken, fhirBaseURL+"/Observation?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var bundle fhirBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("decode observation bundle: %w", err)
	}
	return parseVitals(&bundle), nil
}

func (c *VitalsClient) get(ctx context.Context, accessToken, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build fhir request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fhir request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &UpstreamFetchError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return io.ReadAll(resp.Body)
}

// parseVitals normalizes a searchset bundle into display records. Missing
// fields degrade instead of failing: an observation without a top-level
// quantity falls back to its first component, then to "n/a"; a name falls
// back from code.text to the first coding display, then to "Observation".
func parseVitals(bundle *fhirBundle) []VitalRecord {
	records := make([]VitalRecord, 0, len(bundle.Entry))
	for _, entry := range bundle.Entry {
		var obs fhirObservation
		if err := json.Unmarshal(entry.Resource, &obs); err != nil {
			continue
		}
		// Searchset bundles can interleave OperationOutcome and other
		// resources with the observations.
		if obs.ResourceType != "Observation" {
			continue
		}

		rec := VitalRecord{ID: obs.ID, Name: "Observation", Value: "n/a"}

		if obs.Code.Text != "" {
			rec.Name = obs.Code.Text
		} else if len(obs.Code.Coding) > 0 && obs.Code.Coding[0].Display != "" {
			rec.Name = obs.Code.Coding[0].Display
		}

		q := obs.ValueQuantity
		if q == nil && len(obs.Component) > 0 {
			q = obs.Component[0].ValueQuantity
		}
		if q != nil {
			rec.Value = q.Value.String()
			if q.Unit != "" {
				unit := q.Unit
				rec.Unit = &unit
			}
		}

		if ts := obs.EffectiveDateTime; ts != "" {
			rec.RecordedAt = &ts
		} else if ts := obs.Issued; ts != "" {
			rec.RecordedAt = &ts
		}

		records = append(records, rec)
	}
	return records
}
