package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/hyperledger/fabric/common/flogging"

	"shikkha/internal/certificate"
	"shikkha/internal/ledger"
	id "shikkha/pkg/domain"
	dErrors "shikkha/pkg/domain-errors"
)

var logger = flogging.MustGetLogger("shikkha.certificatecontract")

// WalletAttribute is the enrollment attribute carrying the caller's wallet
// address. Identities without it are addressed by their Fabric ID.
const WalletAttribute = "wallet"

// txNamespace maps Fabric transaction ids onto ledger TxIDs.
var txNamespace = uuid.MustParse("7b0e3a52-8d1f-4c39-9a57-3f0c6f1d2e44")

// CertificateContract exposes the registry as chaincode transactions.
// @contract:CertificateContract
type CertificateContract struct {
	contractapi.Contract
}

// InitLedger fixes the administrator. Only the named administrator may call
// it. Calling it again with the same administrator is a no-op; a different
// one is rejected.
func (c *CertificateContract) InitLedger(ctx contractapi.TransactionContextInterface, admin string) error {
	addr, err := id.ParseAddress(admin)
	if err != nil {
		return err
	}
	caller, err := callerOf(ctx)
	if err != nil {
		return err
	}
	if !caller.Equal(addr) {
		logger.Warningf("InitLedger for %s rejected: invoked by %s", addr, caller)
		return dErrors.New(dErrors.CodeUnauthorized, "only the named administrator may initialize the ledger")
	}
	_, err = ledger.New(context.Background(), NewStubStore(ctx.GetStub()), addr, registryOptions(ctx)...)
	if err != nil {
		return err
	}
	logger.Infof("ledger administrator set to %s", addr)
	return nil
}

// IssueCertificate admits fieldsJSON and returns the receipt as JSON.
func (c *CertificateContract) IssueCertificate(ctx contractapi.TransactionContextInterface, fieldsJSON string) (string, error) {
	var fields certificate.Fields
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "fields must be a JSON object")
	}
	caller, reg, err := c.open(ctx)
	if err != nil {
		return "", err
	}
	receipt, err := reg.Admit(context.Background(), fields, caller)
	if err != nil {
		logger.Warningf("IssueCertificate rejected for %s: %v", caller, err)
		return "", err
	}
	return emit(ctx, receipt)
}

// RevokeCertificate revokes certificateID and returns the receipt as JSON.
func (c *CertificateContract) RevokeCertificate(ctx contractapi.TransactionContextInterface, certificateID string) (string, error) {
	cid, err := id.ParseCertificateID(certificateID)
	if err != nil {
		return "", err
	}
	caller, reg, err := c.open(ctx)
	if err != nil {
		return "", err
	}
	receipt, err := reg.Revoke(context.Background(), cid, caller)
	if err != nil {
		logger.Warningf("RevokeCertificate %s rejected for %s: %v", cid, caller, err)
		return "", err
	}
	return emit(ctx, receipt)
}

// RecordView is the evaluate-only answer for one certificate.
type RecordView struct {
	Found     bool               `json:"found"`
	ID        string             `json:"id,omitempty"`
	Fields    certificate.Fields `json:"fields"`
	Issuer    string             `json:"issuer,omitempty"`
	IssuedAt  int64              `json:"issued_at,omitempty"`
	Status    string             `json:"status,omitempty"`
	RevokedAt int64              `json:"revoked_at,omitempty"`
}

// VerifyCertificate reads the ledger record for certificateID. An unknown
// identity is reported with found=false rather than an error.
func (c *CertificateContract) VerifyCertificate(ctx contractapi.TransactionContextInterface, certificateID string) (string, error) {
	cid, err := id.ParseCertificateID(certificateID)
	if err != nil {
		return "", err
	}
	reg, err := ledger.Open(context.Background(), NewStubStore(ctx.GetStub()))
	if err != nil {
		return "", err
	}
	rec, found, err := reg.Lookup(context.Background(), cid)
	if err != nil {
		return "", err
	}
	view := RecordView{Found: found}
	if found {
		view.ID = rec.ID.String()
		view.Fields = rec.Fields
		view.Issuer = rec.Issuer.String()
		view.IssuedAt = rec.IssuedAt.Unix()
		view.Status = string(rec.Status)
		if rec.RevokedAt != nil {
			view.RevokedAt = rec.RevokedAt.Unix()
		}
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Admin returns the ledger administrator.
func (c *CertificateContract) Admin(ctx contractapi.TransactionContextInterface) (string, error) {
	reg, err := ledger.Open(context.Background(), NewStubStore(ctx.GetStub()))
	if err != nil {
		return "", err
	}
	return reg.CurrentAdmin().String(), nil
}

func (c *CertificateContract) open(ctx contractapi.TransactionContextInterface) (id.Address, *ledger.Registry, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return "", nil, err
	}
	reg, err := ledger.Open(context.Background(), NewStubStore(ctx.GetStub()), registryOptions(ctx)...)
	if err != nil {
		return "", nil, err
	}
	return caller, reg, nil
}

// registryOptions pins the clock and transaction id to the proposal so every
// endorser computes the same write set.
func registryOptions(ctx contractapi.TransactionContextInterface) []ledger.Option {
	stub := ctx.GetStub()
	txID := ledgerTxID(stub.GetTxID())
	var ts time.Time
	if pb, err := stub.GetTxTimestamp(); err == nil && pb != nil {
		ts = pb.AsTime()
	}
	return []ledger.Option{
		ledger.WithClock(func() time.Time { return ts }),
		ledger.WithTxIDSource(func(context.Context) id.TxID { return txID }),
	}
}

func callerOf(ctx contractapi.TransactionContextInterface) (id.Address, error) {
	identity := ctx.GetClientIdentity()
	if identity == nil {
		return "", dErrors.New(dErrors.CodeUnauthenticated, "no client identity")
	}
	if wallet, ok, err := identity.GetAttributeValue(WalletAttribute); err == nil && ok && wallet != "" {
		return id.ParseAddress(wallet)
	}
	fullID, err := identity.GetID()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthenticated, "failed to read client identity")
	}
	return id.ParseAddress(fullID)
}

// emit publishes the receipt as a chaincode event named after its first
// effect. Fabric delivers at most one event per transaction.
func emit(ctx contractapi.TransactionContextInterface, receipt certificate.Receipt) (string, error) {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return "", err
	}
	name := "CertificateReceipt"
	if len(receipt.Effects) > 0 {
		name = string(receipt.Effects[0].Kind)
	}
	if err := ctx.GetStub().SetEvent(name, raw); err != nil {
		return "", fmt.Errorf("set event %s: %w", name, err)
	}
	return string(raw), nil
}
