package models

// Exercise is a prepared code sample. The typeable text and the excluded
// span identifiers come from an external preprocessing step; the race engine
// consumes them as-is and never re-derives them from the raw code.
type Exercise struct {
	ID          string   `json:"id"`
	Lang        string   `json:"lang"`
	ProjectName string   `json:"projectName"`
	Code        string   `json:"code"`
	Typeable    string   `json:"typeableCode"`
	NonTypeable []string `json:"nonTypeables"`
}
