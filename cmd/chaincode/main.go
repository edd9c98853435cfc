package main

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"shikkha/internal/ledger/fabric"
)

func main() {
	cc, err := contractapi.NewChaincode(&fabric.CertificateContract{})
	if err != nil {
		panic("Error creating CertificateContract chaincode: " + err.Error())
	}
	cc.Info.Title = "shikkha-certificates"
	cc.Info.Version = "1.0.0"
	if err := cc.Start(); err != nil {
		panic("Error starting chaincode: " + err.Error())
	}
}
