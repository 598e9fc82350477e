package research

const cellSystemPrompt = `You are a software procurement analyst. You research whether a vendor's
product satisfies one evaluation criterion for a buyer's project. Prefer the
vendor's own documentation, then reputable third-party sources. Never invent
URLs. Respond with a single JSON object and nothing else.`

const cellUserPrompt = `Project: %s
Project description: %s
Criterion type: %s

Vendor: %s (%s)
Criterion: %s (importance: %s)
Criterion description: %s

Return JSON with exactly these keys:
{
  "evidence_strength": "confirmed" | "mentioned" | "unclear" | "not_found",
  "evidence_url": "<best source URL or empty>",
  "evidence_description": "<one or two sentences quoting or summarising the evidence>",
  "research_notes": "<short analyst note>"
}`

const rankSystemPrompt = `You are a software procurement analyst comparing several vendors on one
evaluation criterion. You receive prior per-vendor research. Decide a final
verdict per vendor and award stars to vendors that clearly outperform the
rest. Respond with a single JSON object and nothing else.`

const rankUserPrompt = `Project: %s
Project description: %s
Criterion type: %s
Criterion: %s (importance: %s)
Criterion description: %s

Prior research per vendor (JSON):
%s

Return JSON with exactly these keys:
{
  "criterion_insight": "<two or three sentences comparing the vendors>",
  "stars_awarded": <number of vendors marked star>,
  "vendor_rankings": [
    {"vendor_id": "<id>", "state": "yes" | "no" | "unknown" | "star",
     "evidence_url": "<url>", "evidence_description": "<text>", "comment": "<text>"}
  ]
}`
