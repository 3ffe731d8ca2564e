// Package generation forwards content generation requests to the backend
// content service.
//
// The backend renders four kinds of study material: diagrams, flashcards,
// quizzes, and mind maps. Requests come from two places: voice-agent function
// calls routed by the webhook package, and the authenticated
// /api/voice/generate-visual endpoint.
package generation
