package prompt

// DefaultTemplate is the embedded default prompt template.
// It uses {{variable}} placeholders for dynamic content injection.
const DefaultTemplate = `# gyre Iteration
Project: {{project}} | Iteration: #{{iteration}}

{{history}}

{{journal}}

{{ledger}}

{{item}}

## Rules
- Work ONLY on the work item above - complete it fully, then STOP
- Every acceptance criterion must be satisfied before you stop
- Never edit .gyre/ledger.json or .gyre/journal.md; the controller records outcomes
- Leave your changes uncommitted; the controller commits after quality gates pass
- Do not start other work items, even small ones

## Workflow
1. Read the acceptance criteria and inspect the relevant code
2. Implement the change
3. Run the project's tests for the code you touched
4. End your reply with a short summary of what you changed and why

## If Stuck
- Say clearly what is blocking you instead of guessing
- Partial progress with a precise summary beats a broken "done"

## Completion
If the ledger above shows no remaining items besides this one and its
criteria are now satisfied, print exactly:
{{sentinel}}
{{extra}}`
