package pipeline

import "fmt"

// DefaultPromptContextChars caps the context bytes embedded in a prompt.
const DefaultPromptContextChars = 12000

const auditPromptTemplate = `You are a compliance auditor. Your task is to determine if a policy document meets a specific requirement.

Requirement (Question):
"%s"

Policy Document Excerpts (Context from Database):
"%s"

Instructions:
1. Read the Requirement and Context carefully. Pay attention to Filename and Page markers.
2. Determine if the Context *fully satisfies* the Requirement.
3. If the Requirement is vague or nonsensical, respond "STATUS: Not Met".
4. Respond ONLY in the following exact format:
    STATUS: Met|Not Met
    EVIDENCE: (From Filename: <file>, Page: <page_num>) "<exact quote>"    [ONLY if Met]
5. If Met, quote the exact text and cite the filename AND page number.

Example Response (Met):
STATUS: Met
EVIDENCE: (From Filename: GG.1508_v2.pdf, Page: 10) "For a retrospective request... no later than fourteen (14) calendar days..."

Example Response (Not Met):
STATUS: Not Met

Begin analysis.
`

// BuildPrompt renders the auditor prompt. It returns the prompt and the
// context as embedded, which is what answers must be verified against.
func BuildPrompt(question, policyContext string, maxContext int) (prompt, sent string) {
	sent = truncate(policyContext, maxContext)
	return fmt.Sprintf(auditPromptTemplate, question, sent), sent
}
