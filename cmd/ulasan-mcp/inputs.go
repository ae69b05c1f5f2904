package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types are optional; value types are required.

type emptyInput struct{}

type timeSeriesInput struct {
	PlatformID *int64  `json:"platform_id,omitempty" jsonschema:"Platform ID from platforms_list. If omitted all platforms are included."`
	AspectID   *int64  `json:"aspect_id,omitempty"   jsonschema:"Aspect ID from aspects_list. If omitted all aspects are included."`
	StartDate  *string `json:"start_date,omitempty"  jsonschema:"First day to include, YYYY-MM-DD"`
	EndDate    *string `json:"end_date,omitempty"    jsonschema:"Last day to include, YYYY-MM-DD"`
}

type totalsInput struct {
	AspectID  *int64  `json:"aspect_id,omitempty"  jsonschema:"Aspect ID from aspects_list. If omitted all aspects are summed."`
	StartDate *string `json:"start_date,omitempty" jsonschema:"First day to include, YYYY-MM-DD"`
	EndDate   *string `json:"end_date,omitempty"   jsonschema:"Last day to include, YYYY-MM-DD"`
}

type distributionInput struct {
	SentimentType string  `json:"sentiment_type"       jsonschema:"Which sentiment to break down: positive, neutral or negative"`
	StartDate     *string `json:"start_date,omitempty" jsonschema:"First day to include, YYYY-MM-DD"`
	EndDate       *string `json:"end_date,omitempty"   jsonschema:"Last day to include, YYYY-MM-DD"`
}

type versionsInput struct {
	PlatformID int64   `json:"platform_id"          jsonschema:"Platform ID from platforms_list"`
	StartDate  *string `json:"start_date,omitempty" jsonschema:"First release day to include, YYYY-MM-DD"`
	EndDate    *string `json:"end_date,omitempty"   jsonschema:"Last release day to include, YYYY-MM-DD"`
}

type dayInput struct {
	PlatformID int64  `json:"platform_id" jsonschema:"Platform ID from platforms_list"`
	Date       string `json:"date"        jsonschema:"The day, YYYY-MM-DD"`
}

type wordCloudInput struct {
	Platform string `json:"platform" jsonschema:"Platform name, e.g. tiktok"`
	Date     string `json:"date"     jsonschema:"The day, YYYY-MM-DD"`
	Aspect   string `json:"aspect"   jsonschema:"Aspect name"`
}

type ingestFilesInput struct {
	Paths []string `json:"paths" jsonschema:"JSON files or directories on the server host. Directories contribute their *.json files in name order."`
}

type analyzeInput struct {
	ReviewText string `json:"review_text" jsonschema:"The review to label per aspect"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
