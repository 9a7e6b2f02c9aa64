// Package config loads the collab configuration and turns it into session
// options.
//
// # Configuration Loading
//
// Load merges configuration from several sources, later sources overriding
// earlier ones:
//
//  1. Global config (~/.config/collab/collab.json[c])
//  2. Project config (collab.json[c] in the working directory)
//  3. Project config (.collab/collab.json[c] or .collab/collab.y[a]ml)
//  4. Persona files (.collab/agents/**/*.yaml, *.yml, *.json)
//  5. COLLAB_CONFIG file
//  6. COLLAB_CONFIG_CONTENT inline JSON
//  7. Environment variables
//
// Scalars are replaced, maps are merged key by key, and policy lists are
// replaced list by list: a list a later source leaves unset is kept, an
// empty list clears it.
//
// # Variable Interpolation
//
// Configuration files support two placeholders:
//   - {env:VAR_NAME} expands to an environment variable
//   - {file:path} expands to file contents, escaped for JSON documents
//
// Relative file paths resolve against the directory of the config file.
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, ARK_API_KEY fill provider keys
//     that the files leave empty
//   - COLLAB_MODEL selects the model ("provider/model")
//   - COLLAB_LOG_LEVEL sets the log level
//   - COLLAB_DEFAULT_SUBAGENTS enables or disables the default personas
//   - COLLAB_POLICY holds a JSON policy merged over the configured one
//
// LoadDotEnv reads .env.local and .env before Load runs, without replacing
// variables already set.
//
// # Session Options
//
// SessionOptions validates the policy, reads instruction files and merges
// configured personas into the built-in Planner, Builder and Reviewer
// templates.
package config
