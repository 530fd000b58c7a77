package config

import "testing"

func TestNamespaceFileBackendConstructsRegisteredVariant(t *testing.T) {
	ns := &Namespace{Name: "ns1", FileMDAL: "posix", DirMDAL: "posix"}
	if _, err := ns.FileBackend(map[string]interface{}{"root": t.TempDir()}); err != nil {
		t.Fatalf("FileBackend: %v", err)
	}
	if _, err := ns.DirBackend(map[string]interface{}{"root": t.TempDir()}); err != nil {
		t.Fatalf("DirBackend: %v", err)
	}
}

func TestNamespaceFileBackendRejectsUnknownMDAL(t *testing.T) {
	ns := &Namespace{Name: "ns1", FileMDAL: "bogus"}
	if _, err := ns.FileBackend(nil); err == nil {
		t.Fatal("expected error for unknown file_mdal")
	}
}
