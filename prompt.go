package flowgate

import "strings"

// MaxPromptChars bounds the article text (vision prefix included) embedded
// in any backend payload.
const MaxPromptChars = 50000

// Section headings used when vision analysis is prepended to the article.
const (
	VisionSectionHeader  = "## IMAGE ANALYSIS"
	ArticleSectionHeader = "## ARTICLE TEXT"
)

// DefaultSystemPrompt is the persona used when the caller supplies none.
const DefaultSystemPrompt = "You are an expert cyber threat intelligence analyst specializing in MITRE ATT&CK. " +
	"You extract attack flows from threat reports as precise, well-formed JSON graphs. " +
	"You only report techniques, tools and assets that the source material supports."

// TruncationNotice is appended when the combined text exceeds MaxPromptChars.
const TruncationNotice = "\n\n[... content truncated ...]"

// CombineText prepends the vision analysis (if any) to the article under the
// fixed section headings, then truncates the result to MaxPromptChars runes.
func CombineText(text, visionAnalysis string) string {
	combined := text
	if strings.TrimSpace(visionAnalysis) != "" {
		combined = VisionSectionHeader + "\n" + visionAnalysis + "\n\n" + ArticleSectionHeader + "\n" + text
	}
	return Truncate(combined, MaxPromptChars)
}

// Truncate cuts s to at most limit runes, marking the cut with TruncationNotice.
// The notice counts toward the limit.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	keep := limit - len([]rune(TruncationNotice))
	if keep < 0 {
		return string(runes[:limit])
	}
	return string(runes[:keep]) + TruncationNotice
}

// SystemOrDefault returns system, or DefaultSystemPrompt when blank.
func SystemOrDefault(system string) string {
	if strings.TrimSpace(system) == "" {
		return DefaultSystemPrompt
	}
	return system
}

// ExtractionInstructions is the fixed taxonomy block placed ahead of the article.
const ExtractionInstructions = `Analyze the threat report below and extract the attack flow as a directed graph.

Return ONLY a JSON object with two arrays: "nodes" and "edges". No prose, no markdown fences.

NODE TYPES (field "type"):
- "action": an adversary behaviour mapped to MITRE ATT&CK. Required: "name", "technique_id" (e.g. T1566.001), "tactic" (e.g. initial-access), "description".
- "tool": legitimate software abused by the adversary. Required: "name", "description".
- "malware": malicious software. Required: "name", "description".
- "asset": a targeted system, account or data store. Required: "name", "description".
- "infrastructure": adversary-controlled servers, domains or IPs. Required: "name", "description".
- "vulnerability": an exploited weakness. Required: "name", "cve_id" when known, "description".
- "AND_operator" / "OR_operator": logical gates joining prerequisite branches. Required: "name".

Every node has a unique string "id" and a "confidence" of "low", "medium" or "high".

EDGE FIELDS: "id", "source" (node id), "target" (node id), "label" (one of "leads_to", "uses", "targets", "exploits", "communicates_with", "requires").

RULES:
- Order actions chronologically along the kill chain.
- Every action must connect to at least one other node.
- Use operators only when the report describes alternative or combined prerequisites.
- Do not invent technique IDs; omit a node rather than guess.

EXAMPLE:
{"nodes":[{"id":"n1","type":"action","name":"Spearphishing Attachment","technique_id":"T1566.001","tactic":"initial-access","description":"Victims received a weaponized Word document.","confidence":"high"},{"id":"n2","type":"malware","name":"Emotet","description":"Loader dropped by the document macro.","confidence":"high"},{"id":"n3","type":"action","name":"Command and Scripting Interpreter: PowerShell","technique_id":"T1059.001","tactic":"execution","description":"The macro launched an encoded PowerShell command.","confidence":"medium"}],"edges":[{"id":"e1","source":"n1","target":"n3","label":"leads_to"},{"id":"e2","source":"n3","target":"n2","label":"uses"}]}

THREAT REPORT:
`

// BuildUserPrompt returns the instruction block followed by the combined,
// truncated article text.
func BuildUserPrompt(text, visionAnalysis string) string {
	return ExtractionInstructions + CombineText(text, visionAnalysis)
}

// VisionContextChars bounds the article excerpt sent alongside images.
const VisionContextChars = 4000

// DefaultVisionPrompt asks a vision model for attack-relevant image details.
const DefaultVisionPrompt = `Examine the attached images from a threat report. Describe every detail relevant to reconstructing the attack: commands, process trees, file paths, registry keys, network indicators, code snippets, diagrams of attacker infrastructure and any MITRE ATT&CK techniques they evidence. Transcribe visible text exactly. Skip decorative images such as logos or author photos.`

// VisionInstructions returns the text block sent ahead of the images: the
// caller's prompt (or DefaultVisionPrompt) plus an excerpt of the article.
func VisionInstructions(req VisionRequest) string {
	instructions := req.Prompt
	if strings.TrimSpace(instructions) == "" {
		instructions = DefaultVisionPrompt
	}
	if article := strings.TrimSpace(req.ArticleText); article != "" {
		instructions += "\n\nARTICLE CONTEXT:\n" + Truncate(article, VisionContextChars)
	}
	return instructions
}
