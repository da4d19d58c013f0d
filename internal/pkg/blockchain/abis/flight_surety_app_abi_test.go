package abis

import "testing"

func TestGetFlightSuretyAppABI(t *testing.T) {
	parsed, err := GetFlightSuretyAppABI()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"registerOracle", "getMyIndexes", "submitOracleResponse"} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Errorf("expected method %s", name)
		}
	}
	if !parsed.Methods["registerOracle"].IsPayable() {
		t.Error("expected registerOracle to be payable")
	}
	if !parsed.Methods["getMyIndexes"].IsConstant() {
		t.Error("expected getMyIndexes to be a view")
	}

	event, ok := parsed.Events["OracleRequest"]
	if !ok {
		t.Fatal("expected OracleRequest event")
	}
	if got := event.Sig; got != "OracleRequest(address,string,uint256)" {
		t.Errorf("OracleRequest signature = %s", got)
	}
}

func TestParseABI_Invalid(t *testing.T) {
	if _, err := ParseABI(`{not json`); err == nil {
		t.Fatal("expected error for invalid ABI JSON")
	}
}
