/*
Package manifest loads the game catalog and resolves spoken names to it.

# Overview

A catalog file lists games with their launch command, synonyms, readiness
probe and quit operation. JSON, YAML and TOML are accepted; a directory
loads every catalog file beneath it in lexical order.

	{
	  "games": [
	    {
	      "id": "notepad",
	      "name": "Notepad",
	      "exec": "notepad.exe",
	      "synonyms": ["记事本", "notebook"],
	      "healthcheck": {"type": "process"}
	    }
	  ]
	}

# Validation

Entries are validated one by one. An invalid entry, or one whose id, name
or synonym collides with an earlier entry after case folding, is left out
and reported as an Issue. Loading is fail-open: a missing file yields an
empty catalog. Reload is all-or-nothing: the active catalog is replaced only
when the new one has no issues.

# Resolution

Resolve tries, in order:

 1. exact id
 2. folded synonym, display name or id (NFKC + Unicode case folding)
 3. fuzzy match: containment scores 0.8, otherwise normalised Levenshtein
    similarity, keeping scores of at least 0.6

Fuzzy results always need confirmation. Ties at the best score are
ambiguous and carry every tied candidate.
*/
package manifest
