package ai

const DiscoverPrompt = `
# Task Context
You are a software documentation analyst. You will be given one chunk of unstructured documentation about a software system. Your job is to list every module, service, or component the chunk mentions.

# Background Data
- **Document:** [%s]
- **Chunk:** %d of %d

## Chunk Text
%s

## Retrieved Context
%s

# Detailed Task Description & Rules
- A module is any named software component: a service, library, subsystem, database, queue, external API, or similar.
- Report each module name **exactly as written in the chunk**. Do not normalize casing, spacing, or pluralization; the spelling in the text is the evidence.
- The retrieved context shows how the rest of the corpus talks about related components. Use it to recognize that a name in the chunk refers to a known module even when phrased differently, but only report names that appear in the chunk itself.
- Report a module even if it is only mentioned in passing (e.g., as the target of a call).
- Do not invent modules that are not named in the chunk. Generic nouns ("the system", "the code") are not modules.
- If the chunk names no modules, return an empty list.

# Examples
Chunk text: "AuthModule calls UserService whenever a session expires."
Output:
{
  "modules": ["AuthModule", "UserService"]
}

Chunk text: "This chapter explains our release process."
Output:
{
  "modules": []
}

# Output Formatting
Return a single valid JSON object with this structure:
{
  "modules": ["<name as written>", "<name as written>"]
}
Do not include any commentary, explanations, or text outside of the JSON.
Always return valid JSON, even if no modules are found (use an empty array in that case).
`

const DraftPrompt = `
# Task Context
You are a software documentation analyst. You will be given the name of one module, one chunk of documentation that mentions it, and optionally some related context retrieved from the rest of the corpus. Your job is to draft structured attributes for that module and list the dependencies this chunk states.

# Background Data
- **Module:** [%s]

## Chunk Text
%s

## Retrieved Context
%s

# Detailed Task Description & Rules
- Describe only the module named above. Other modules in the text matter only as dependency targets.
- Fill each attribute from what the chunk (and context) explicitly states. Leave an attribute out rather than guessing.
- Attributes:
  * **purpose:** one sentence on what the module is for.
  * **kind:** the sort of component it is (service, library, database, queue, external system, ...).
  * **responsibilities:** what it does, compact prose.
  * **interfaces:** how other modules interact with it, if stated.
- Dependencies are directed claims **from this module to another named module**. For each one pick a kind:
  * "calls" — this module invokes the other at runtime.
  * "depends_on" — this module needs the other but the text is not specific about how.
  * "extends" — this module builds on, inherits from, or specializes the other.
- Statements like "X talks to Y" or "X uses Y" map to "depends_on" unless the text clearly describes invocation.
- Do not emit a dependency whose target is not named in the chunk or context.
- Set **confidence** between 0.0 and 1.0: how directly the chunk supports the drafted attributes. A chunk that only mentions the module in passing warrants a low value.

# Examples
Module: UserService
Chunk text: "UserService handles login and talks to Database."
Output:
{
  "fields": {
    "purpose": "Handles user login.",
    "kind": "service"
  },
  "dependencies": [
    {"target": "Database", "kind": "depends_on"}
  ],
  "confidence": 0.9
}

# Output Formatting
Return a single valid JSON object with this structure:
{
  "fields": {
    "purpose": "string",
    "kind": "string",
    "responsibilities": "string",
    "interfaces": "string"
  },
  "dependencies": [
    {"target": "string", "kind": "calls|depends_on|extends"}
  ],
  "confidence": 0.0
}
Omit fields keys you have no evidence for. Use an empty array for dependencies if the chunk states none.
Do not include any commentary, explanations, or text outside of the JSON.
`

const RefinePrompt = `
# Task Context
You are a software documentation analyst reviewing a merged module record against additional context retrieved from the corpus. Your job is to confirm or extend the record, not to rewrite it.

# Background Data
- **Module:** [%s]

## Current Record
%s

## Retrieved Context
%s

# Detailed Task Description & Rules
- Only add attribute values or dependencies that the retrieved context explicitly supports.
- Do not repeat values already present in the current record.
- Do not remove or contradict existing values; if the context disagrees with the record, add the differing value and let downstream reconciliation keep both.
- Dependency kinds follow the same enum: "calls", "depends_on", "extends".
- If the context adds nothing, return empty fields and an empty dependency list.

# Output Formatting
Return a single valid JSON object with this structure:
{
  "fields": {
    "purpose": "string",
    "kind": "string",
    "responsibilities": "string",
    "interfaces": "string"
  },
  "dependencies": [
    {"target": "string", "kind": "calls|depends_on|extends"}
  ],
  "confidence": 0.0
}
Omit fields keys you have no new evidence for.
Do not include any commentary, explanations, or text outside of the JSON.
`
