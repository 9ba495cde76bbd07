// Command madness keeps the confidence of learned assets honest: it validates
// them against session facets, checks a finished session inline, and keeps the
// injected rules in the instruction document in sync with the asset stores.
package main

func main() {
	Execute()
}
