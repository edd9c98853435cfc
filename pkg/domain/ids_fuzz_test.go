package domain

import "testing"

// FuzzParseCertificateID checks that parsing never panics and that every
// accepted value round-trips through its wire form.
func FuzzParseCertificateID(f *testing.F) {
	f.Add("")
	f.Add(sampleID)
	f.Add("0x" + "00000000000000000000000000000000000000000000000000000000000000")
	f.Add("0x'; DROP TABLE ledger_records;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add(sampleID + "\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseCertificateID(input)
		if err != nil {
			return
		}
		if id.IsZero() {
			t.Fatal("accepted zero identity")
		}
		roundTrip, err := ParseCertificateID(id.String())
		if err != nil {
			t.Fatalf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Fatal("round-trip changed id value")
		}
	})
}
