package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/resumeparser/internal/agent"
)

// --- Resume Agent Prompt ---
const ResumeAgentSystemPrompt = `You are a resume parsing agent. You will be given the plain text of a single resume, extracted from a PDF or Word document. Layout may be lost and lines may be broken in odd places.

Return ONE JSON object describing the candidate, using these keys when the information is present:
- "name": full name
- "email", "phone", "location", "links" (array of URLs)
- "summary": the candidate's own summary or objective, verbatim where possible
- "skills": array of strings
- "experience": array of objects with "title", "company", "location", "start_date", "end_date", "highlights" (array of strings)
- "education": array of objects with "institution", "degree", "field", "start_date", "end_date"
- "certifications": array of strings

Omit keys you cannot fill. Do not invent information. Return ONLY the JSON object, with no preamble and no code fences.`

// VertexClient invokes Gemini models on Vertex AI as the resume agent.
type VertexClient struct {
	baseClient *genai.Client
}

// NewVertexClient creates a Vertex AI client for the given project and region.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexClient{baseClient: baseClient}, nil
}

// ModelName resolves an agent identity and alias to a Gemini model name. The
// agent ID names the model and the alias pins its revision, so
// ("gemini-1.5-pro", "002") becomes "gemini-1.5-pro-002".
func ModelName(agentID, aliasID string) string {
	if aliasID == "" || strings.HasSuffix(agentID, "-"+aliasID) {
		return agentID
	}
	return agentID + "-" + aliasID
}

func (c *VertexClient) resumeModel(agentID, aliasID string) *genai.GenerativeModel {
	model := c.baseClient.GenerativeModel(ModelName(agentID, aliasID))
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ResumeAgentSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
	return model
}

// InvokeAgent opens a fresh chat session and streams the model's reply to
// the resume text. Transport errors surface from the first call to Next.
func (c *VertexClient) InvokeAgent(ctx context.Context, in agent.InvokeInput) (agent.Stream, error) {
	if in.InputText == "" {
		return nil, fmt.Errorf("session %s: input text is empty", in.SessionID)
	}
	chat := c.resumeModel(in.AgentID, in.AliasID).StartChat()
	return &vertexStream{it: chat.SendMessageStream(ctx, genai.Text(in.InputText))}, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

type vertexStream struct {
	it *genai.GenerateContentResponseIterator
}

func (s *vertexStream) Next() (agent.Fragment, error) {
	resp, err := s.it.Next()
	if err != nil {
		return agent.Fragment{}, err
	}
	return fragmentFromResponse(resp), nil
}

// fragmentFromResponse concatenates the text parts of the first candidate.
// A chunk with no text parts is a fragment without content.
func fragmentFromResponse(resp *genai.GenerateContentResponse) agent.Fragment {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return agent.Fragment{}
	}

	var sb strings.Builder
	var found bool
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
			found = true
		}
	}
	return agent.Fragment{Content: sb.String(), HasContent: found}
}
