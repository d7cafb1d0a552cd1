// Package mcpserver exposes the tutoring flows as MCP tools so agent
// hosts and editors can call them over stdio.
package mcpserver

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lyralabs/lyra/pkg/tutor"
	"github.com/lyralabs/lyra/pkg/tutor/history"
)

// Server wraps a tutor engine behind an MCP tool surface.
type Server struct {
	engine *tutor.Engine
	srv    *mcp.Server
}

// New builds the server and registers the ai_tutor and session_title
// tools. Input and output schemas are inferred from the arg structs.
func New(engine *tutor.Engine, version string) *Server {
	s := &Server{engine: engine}
	s.srv = mcp.NewServer(&mcp.Implementation{Name: "lyra", Version: version}, nil)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "ai_tutor",
		Description: "Ask the AI tutor a question about a subject. Pass prior turns in history to continue a conversation.",
		InputSchema: tutorInputSchema(),
	}, s.tutorTool)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "session_title",
		Description: "Produce a short title (at most five words) for a tutoring conversation from its first message.",
	}, s.titleTool)
	return s
}

// Run serves MCP over stdio until ctx is done or the host disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

// Connect binds the server to one transport session. Tests drive the
// server through in-memory transports with this.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.srv.Connect(ctx, t, nil)
}

type turnArg struct {
	Role string `json:"role" jsonschema:"who spoke, student or tutor"`
	Text string `json:"text" jsonschema:"the turn's text"`
}

// tutorInputSchema derives the schema from tutorArgs and constrains
// history roles to the two speakers, which struct tags cannot express.
func tutorInputSchema() *jsonschema.Schema {
	schema, err := jsonschema.For[tutorArgs](nil)
	if err != nil {
		return nil
	}
	if hist, ok := schema.Properties["history"]; ok && hist.Items != nil {
		if role, ok := hist.Items.Properties["role"]; ok {
			role.Enum = []any{"student", "tutor"}
		}
	}
	return schema
}

type tutorArgs struct {
	Subject string    `json:"subject" jsonschema:"subject the student is working on"`
	Message string    `json:"message" jsonschema:"the student's question"`
	Student string    `json:"student,omitempty" jsonschema:"student display name"`
	History []turnArg `json:"history,omitempty" jsonschema:"prior turns, oldest first"`
}

type tutorOut struct {
	Reply         string `json:"reply"`
	PromptVersion int    `json:"promptVersion"`
	Model         string `json:"model,omitempty"`
	Tokens        int    `json:"tokens,omitempty"`
}

func (s *Server) tutorTool(ctx context.Context, _ *mcp.CallToolRequest, in tutorArgs) (*mcp.CallToolResult, tutorOut, error) {
	turns := make([]history.Turn, 0, len(in.History))
	for _, t := range in.History {
		turns = append(turns, history.Turn{Role: t.Role, Text: t.Text})
	}
	reply, err := s.engine.Tutor(ctx, tutor.TutorRequest{
		Subject: in.Subject,
		Student: in.Student,
		Message: in.Message,
		History: turns,
	})
	if err != nil {
		return nil, tutorOut{}, err
	}
	out := tutorOut{
		Reply:         reply.Text,
		PromptVersion: reply.PromptVersion,
		Model:         reply.Model,
		Tokens:        reply.Tokens,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: reply.Text}},
	}, out, nil
}

type titleArgs struct {
	Subject string `json:"subject,omitempty" jsonschema:"subject the chat is about"`
	Message string `json:"message" jsonschema:"first student message of the chat"`
}

type titleOut struct {
	Title string `json:"title"`
}

func (s *Server) titleTool(ctx context.Context, _ *mcp.CallToolRequest, in titleArgs) (*mcp.CallToolResult, titleOut, error) {
	reply, err := s.engine.Title(ctx, tutor.TitleRequest{Subject: in.Subject, Message: in.Message})
	if err != nil {
		return nil, titleOut{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: reply.Title}},
	}, titleOut{Title: reply.Title}, nil
}
