/*
Package config loads and validates the MarFS configuration file: the
list of repositories and namespaces that together describe where data
and metadata live, how they are erasure-coded and packed, and which
permissions and quotas apply.

# Configuration Structure

	┌─────────────────────────────────────────────┐
	│                Namespaces                   │
	│   mount path, MDAL pairing, perms, quota,    │
	│   trash dir, fsinfo path, repo ranges,       │
	│   ref-dir breadth/depth/digits, ghost target │
	└─────────────────────────────────────────────┘
	                      │ repo_ranges
	┌─────────────────────────────────────────────┐
	│                   Repos                     │
	│   DAL variant, chunk size, pack constraints, │
	│   host pool (round-robin)                    │
	└─────────────────────────────────────────────┘

# Usage

Loading and validating a config file:

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	ns, ok := cfg.Namespace("projecta")
	pos, residual, err := cfg.Traverse("/projecta/data/file.bin", true)

Locating the config file by the standard search order
($MARFSCONFIGRC, $HOME/.marfsconfigrc, /etc/marfsconfigrc):

	path, err := config.Locate()

# Reference-Dir Hashing

Each namespace bakes in a distributor table over its B^D reference-dir
leaves (internal/distributor), so every stream ID hashes deterministically
to one leaf directory:

	leaf, err := ns.LeafFor(streamID)

# Permissions

Every operation is checked against both a namespace's batch permission
mask and, when running interactively, its interactive overlay:

	if err := pos.CheckPerm(config.PermWriteData, interactive); err != nil {
		return err
	}
*/
package config
