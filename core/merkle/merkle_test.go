package merkle

import "testing"

func TestProofVerifiesForEveryLeaf(t *testing.T) {
	leaves := [][]byte{[]byte("tx1"), []byte("tx2"), []byte("tx3"), []byte("tx4"), []byte("tx5")}
	for i := range leaves {
		proof, root, err := Proof(leaves, uint32(i))
		if err != nil {
			t.Fatalf("Proof(%d): %v", i, err)
		}
		if !Verify(root, leaves[i], proof, uint32(i)) {
			t.Fatalf("Verify failed for leaf %d", i)
		}
	}
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	leaves := [][]byte{[]byte("tx1"), []byte("tx2"), []byte("tx3")}
	proof, root, err := Proof(leaves, 1)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	if Verify(root, []byte("not-tx2"), proof, 1) {
		t.Fatal("Verify should reject a substituted leaf")
	}
}

func TestBuildRejectsEmptyLeaves(t *testing.T) {
	if _, err := Build(nil); err == nil {
		t.Fatal("expected error for empty leaf set")
	}
}
