package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Extractor Model Prompts ---
const ExtractorSystemPrompt = "You are a precise data extraction tool for university result gazettes. You read one page of a scanned PDF and return its student result table as a JSON array. You never add commentary."
const ExtractorUserPrompt = `Extract the result table from PAGE %d of this PDF.

The output must be a JSON array of student objects.

Extraction rules:
1. Basic info: extract "Seat_No", "Name" (name of candidate), "Grand_Total" (e.g. 425), "CGPA", "Remark" (e.g. PASSES, FAILS, ATKT) and "SGPA" (a list with one value per semester column, in column order).
2. Subjects: use the table header to identify subject names and codes (e.g. "ITH-100", "SHM-133", "AEC-153").
   - Create a list called "Subjects" for each student.
   - Inside "Subjects", create one object per subject column with:
     - "Name": the subject code and name from the header.
     - "Total": the 'tot' marks obtained (integer).
     - "Grade": the 'LG' (letter grade) obtained.
     - "GP": the 'GP' (grade point).
3. Leave out any field that is blank on the page.

Example:
[
  {
    "Seat_No": "2524001",
    "Name": "AARON JESUS COSTA",
    "Grand_Total": 400,
    "SGPA": [6.85],
    "CGPA": 7.00,
    "Remark": "PASSES",
    "Subjects": [
      { "Name": "ITH-100 Python", "Total": 45, "Grade": "C", "GP": 5 },
      { "Name": "SHM-133 Physics", "Total": 22, "Grade": "A", "GP": 8 }
    ]
  }
]

Return ONLY raw JSON. If the page has no student rows, return [].`

// --- Planner Model Prompts ---
const PlannerSystemPrompt = "You translate questions about student exam results into a single JSON query plan. You only ever output one JSON object and never code."
const PlannerUserPrompt = `Question: %q

Each stored record looks like this:
{
  "Name": "AARON JESUS COSTA",   <-- names are always UPPERCASE
  "Seat_No": "12345",
  "CGPA": 9.5,
  "Remark": "PASSES",
  "Grand_Total": 500,
  "Subjects": [
    { "Name": "ITH-100 Computing", "Total": 75, "Grade": "A", "GP": 9 },
    { "Name": "SHM-133 Physics", "Total": 50, "Grade": "B", "GP": 7 }
  ]
}

Answer with one JSON object:
{"op": ..., "name": ..., "subject": ..., "grade": ..., "remark": ..., "sort_by": ..., "order": ..., "limit": ...}

Rules:
1. "op" is one of:
   - "find_student": one student by name. Use this for a student's marks in a subject too; the subject is read from the record later.
   - "find_students": every student matching the filters.
   - "count": how many students match the filters.
   - "top": best (or worst) students by "sort_by".
2. "name", "subject" and "remark" are case-insensitive regular expressions. Use part of a name, e.g. "rahul".
3. "subject" with "grade" matches students who got that letter grade in that subject, e.g. {"op": "find_students", "subject": "physics", "grade": "A"}.
4. "sort_by" is "grand_total" or "cgpa"; "order" is "desc" (highest first, default) or "asc"; "limit" is 1 to 50.
5. Leave out fields you do not need.`

// --- Answer Model Prompts ---
const AnswerSystemPrompt = "You answer questions about student exam results using only the data you are given. Be brief and friendly."
const AnswerUserPrompt = `Question: %q
Data found: %s

Answer the user naturally.
- If they asked for a specific subject mark, look inside the "Subjects" list of the data and find it.
- If listing students, show the Name and the relevant value (CGPA or marks).`

// Model wraps a configured generative model and returns its text output.
type Model struct {
	gm *genai.GenerativeModel
}

// Generate sends parts to the model and returns the concatenated text of the first
// candidate. An empty response yields "".
func (m *Model) Generate(ctx context.Context, parts ...genai.Part) (string, error) {
	resp, err := m.gm.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	return ResponseText(resp), nil
}

// ResponseText joins the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}

// VertexClient holds all pre-configured generative models for our app.
type VertexClient struct {
	ExtractorModel *Model
	PlannerModel   *Model
	AnswerModel    *Model
	baseClient     *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		return nil, fmt.Errorf("NewVertexClient: model name cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	// --- Configure the extractor model ---
	extractorModel := baseClient.GenerativeModel(modelName)
	extractorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ExtractorSystemPrompt)},
	}
	extractorModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   studentRecordsSchema(),
		Temperature:      genai.Ptr[float32](0.0),
	}
	extractorModel.SafetySettings = permissiveSafety()

	// --- Configure the planner model ---
	plannerModel := baseClient.GenerativeModel(modelName)
	plannerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(PlannerSystemPrompt)},
	}
	plannerModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	// --- Configure the answer model ---
	answerModel := baseClient.GenerativeModel(modelName)
	answerModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(AnswerSystemPrompt)},
	}
	answerModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.2),
	}

	return &VertexClient{
		ExtractorModel: &Model{gm: extractorModel},
		PlannerModel:   &Model{gm: plannerModel},
		AnswerModel:    &Model{gm: answerModel},
		baseClient:     baseClient,
	}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// studentRecordsSchema is the response schema for one page of extraction output.
func studentRecordsSchema() *genai.Schema {
	subject := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"Name":  {Type: genai.TypeString},
			"Total": {Type: genai.TypeInteger},
			"Grade": {Type: genai.TypeString},
			"GP":    {Type: genai.TypeNumber},
		},
		Required: []string{"Name"},
	}
	record := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"Seat_No":     {Type: genai.TypeString},
			"Name":        {Type: genai.TypeString},
			"Grand_Total": {Type: genai.TypeInteger, Nullable: true},
			"SGPA":        {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeNumber}},
			"CGPA":        {Type: genai.TypeNumber, Nullable: true},
			"Remark":      {Type: genai.TypeString},
			"Subjects":    {Type: genai.TypeArray, Items: subject},
		},
		Required: []string{"Seat_No", "Name", "Subjects"},
	}
	return &genai.Schema{Type: genai.TypeArray, Items: record}
}

func permissiveSafety() []*genai.SafetySetting {
	return []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
}
