package ftag

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjType is the object-ID type character (spec.md §3, §6).
type ObjType byte

const (
	ObjTypeNone   ObjType = '_'
	ObjTypeUni    ObjType = 'U'
	ObjTypeMulti  ObjType = 'M'
	ObjTypePacked ObjType = 'P'
	ObjTypeSemi   ObjType = 'S'
	ObjTypeFuse   ObjType = 'F'
	ObjTypeNone2  ObjType = 'N' // NONE, distinct from the '_' placeholder type char
)

func (t ObjType) String() string { return string(rune(t)) }

// ObjectID is the parsed form of a MarFS object identifier string.
//
//	<bucket>/<repo>-v<maj>.<min>-<ns>-<typechar>-<cmp>-<cor>-<enc>-<inode-hex>-<md_ctime>-<obj_ctime>-<unique>-<chunksize>-<chunkno>
type ObjectID struct {
	Bucket      string // namespace alias
	Repo        string
	VersMajor   int
	VersMinor   int
	NS          string
	Type        ObjType
	Compression string
	Correction  string
	Encryption  string
	Inode       uint64 // hex-encoded in the wire form
	MDCtime     int64
	ObjCtime    int64
	Unique      uint64
	ChunkSize   int64
	ChunkNo     int64
}

// String renders the canonical wire form of id. Construct(ParseObjectID(s)) == s
// for every id built from valid parts.
func (id ObjectID) String() string {
	rest := strings.Join([]string{
		fmt.Sprintf("%s-v%d.%d", id.Repo, id.VersMajor, id.VersMinor),
		id.NS,
		id.Type.String(),
		id.Compression,
		id.Correction,
		id.Encryption,
		strconv.FormatUint(id.Inode, 16),
		strconv.FormatInt(id.MDCtime, 10),
		strconv.FormatInt(id.ObjCtime, 10),
		strconv.FormatUint(id.Unique, 10),
		strconv.FormatInt(id.ChunkSize, 10),
		strconv.FormatInt(id.ChunkNo, 10),
	}, "-")
	return id.Bucket + "/" + rest
}

// ParseObjectID parses the canonical object-ID wire form. Version must be ≤
// MARFS_CONFIG_MINOR for an equal major version (checked by the caller
// against the live config, since this package has no config dependency).
func ParseObjectID(s string) (ObjectID, error) {
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return ObjectID{}, fmt.Errorf("objectid: missing bucket separator in %q", s)
	}
	id := ObjectID{Bucket: s[:slash]}
	rest := s[slash+1:]

	parts := strings.Split(rest, "-")
	if len(parts) < 13 {
		return ObjectID{}, fmt.Errorf("objectid: expected at least 13 dash-separated fields, got %d in %q", len(parts), rest)
	}
	// Repo and namespace names may contain '-': the first "v<digit>" field
	// after the repo name ends it, and the last ten fields are fixed, so
	// everything between the version and those ten is the namespace.
	n, vi := len(parts), 1
	for vi < n-12 && !(len(parts[vi]) > 1 && parts[vi][0] == 'v' && parts[vi][1] >= '0' && parts[vi][1] <= '9') {
		vi++
	}
	parts = append([]string{strings.Join(parts[:vi+1], "-"), strings.Join(parts[vi+1:n-10], "-")}, parts[n-10:]...)

	repoVer := parts[0]
	vIdx := strings.LastIndex(repoVer, "-v") + 1
	if vIdx == 0 {
		return ObjectID{}, fmt.Errorf("objectid: missing version marker in %q", repoVer)
	}
	id.Repo = repoVer[:vIdx]
	if strings.HasSuffix(id.Repo, "-") {
		// drop the separator between the repo name and the version field
		id.Repo = strings.TrimSuffix(id.Repo, "-")
	}
	verStr := repoVer[vIdx+1:]
	majMin := strings.SplitN(verStr, ".", 2)
	if len(majMin) != 2 {
		return ObjectID{}, fmt.Errorf("objectid: malformed version %q", verStr)
	}
	var err error
	if id.VersMajor, err = strconv.Atoi(majMin[0]); err != nil {
		return ObjectID{}, fmt.Errorf("objectid: major version: %w", err)
	}
	if id.VersMinor, err = strconv.Atoi(majMin[1]); err != nil {
		return ObjectID{}, fmt.Errorf("objectid: minor version: %w", err)
	}

	id.NS = parts[1]
	if len(parts[2]) != 1 {
		return ObjectID{}, fmt.Errorf("objectid: type char must be one byte, got %q", parts[2])
	}
	id.Type = ObjType(parts[2][0])
	id.Compression = parts[3]
	id.Correction = parts[4]
	id.Encryption = parts[5]

	inode, err := strconv.ParseUint(parts[6], 16, 64)
	if err != nil {
		return ObjectID{}, fmt.Errorf("objectid: inode: %w", err)
	}
	id.Inode = inode

	if id.MDCtime, err = strconv.ParseInt(parts[7], 10, 64); err != nil {
		return ObjectID{}, fmt.Errorf("objectid: md_ctime: %w", err)
	}
	if id.ObjCtime, err = strconv.ParseInt(parts[8], 10, 64); err != nil {
		return ObjectID{}, fmt.Errorf("objectid: obj_ctime: %w", err)
	}
	unique, err := strconv.ParseUint(parts[9], 10, 64)
	if err != nil {
		return ObjectID{}, fmt.Errorf("objectid: unique: %w", err)
	}
	id.Unique = unique
	if id.ChunkSize, err = strconv.ParseInt(parts[10], 10, 64); err != nil {
		return ObjectID{}, fmt.Errorf("objectid: chunksize: %w", err)
	}
	if id.ChunkNo, err = strconv.ParseInt(parts[11], 10, 64); err != nil {
		return ObjectID{}, fmt.Errorf("objectid: chunkno: %w", err)
	}

	return id, nil
}

// ValidVersion reports whether id's version is acceptable against a live
// config's (major, minor) ceiling: equal major, minor ≤ configMinor.
func (id ObjectID) ValidVersion(configMajor, configMinor int) bool {
	return id.VersMajor == configMajor && id.VersMinor <= configMinor
}
