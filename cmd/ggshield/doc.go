// Command ggshield detects secrets in commits, staged changes and files.
//
// Usage:
//
//	ggshield secret scan pre-commit
//	ggshield secret scan commit <sha>
//	ggshield secret scan commit-range <range>
//	ggshield secret scan path -r <paths...>
//	ggshield cache show|clear
//	ggshield config show
//	ggshield version
//
// The API key is read from GITGUARDIAN_API_KEY. Exit codes: 0 clean, 1
// incidents found, 2 usage error, 3 authentication error, 4 runtime error.
package main
