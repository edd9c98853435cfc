package fabric

import (
	"sort"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric-protos-go/ledger/queryresult"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// fakeStub models Fabric's visibility rules: writes are staged until commit
// and reads only see committed state.
type fakeStub struct {
	shim.ChaincodeStubInterface
	state   map[string][]byte
	pending map[string][]byte
	events  map[string][]byte
	txID    string
	now     time.Time
}

func newFakeStub() *fakeStub {
	return &fakeStub{
		state:   make(map[string][]byte),
		pending: make(map[string][]byte),
		events:  make(map[string][]byte),
		now:     time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// begin starts a new proposal with the given transaction id.
func (f *fakeStub) begin(txID string) {
	f.txID = txID
	f.pending = make(map[string][]byte)
	f.events = make(map[string][]byte)
	f.now = f.now.Add(time.Minute)
}

func (f *fakeStub) commit() {
	for k, v := range f.pending {
		f.state[k] = v
	}
	f.pending = make(map[string][]byte)
}

func (f *fakeStub) GetState(key string) ([]byte, error) {
	return f.state[key], nil
}

func (f *fakeStub) PutState(key string, value []byte) error {
	f.pending[key] = value
	return nil
}

func (f *fakeStub) GetStateByRange(startKey, endKey string) (shim.StateQueryIteratorInterface, error) {
	var keys []string
	for k := range f.state {
		if k >= startKey && k < endKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	kvs := make([]*queryresult.KV, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, &queryresult.KV{Key: k, Value: f.state[k]})
	}
	return &fakeIterator{kvs: kvs}, nil
}

func (f *fakeStub) GetTxID() string {
	return f.txID
}

func (f *fakeStub) GetTxTimestamp() (*timestamppb.Timestamp, error) {
	return timestamppb.New(f.now), nil
}

func (f *fakeStub) SetEvent(name string, payload []byte) error {
	f.events[name] = payload
	return nil
}

type fakeIterator struct {
	kvs []*queryresult.KV
	pos int
}

func (it *fakeIterator) HasNext() bool {
	return it.pos < len(it.kvs)
}

func (it *fakeIterator) Next() (*queryresult.KV, error) {
	kv := it.kvs[it.pos]
	it.pos++
	return kv, nil
}

func (it *fakeIterator) Close() error {
	return nil
}

type fakeIdentity struct {
	cid.ClientIdentity
	fullID string
	wallet string
}

func (f fakeIdentity) GetID() (string, error) {
	return f.fullID, nil
}

func (f fakeIdentity) GetAttributeValue(attr string) (string, bool, error) {
	if attr == WalletAttribute && f.wallet != "" {
		return f.wallet, true, nil
	}
	return "", false, nil
}

func txContext(stub *fakeStub, identity cid.ClientIdentity) *contractapi.TransactionContext {
	ctx := new(contractapi.TransactionContext)
	ctx.SetStub(stub)
	ctx.SetClientIdentity(identity)
	return ctx
}
