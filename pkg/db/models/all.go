package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Product{},
		&Modifier{},
		&CreatorMix{},
		&Cart{},
		&CartItem{},
		&Promotion{},
		&PromotionUsage{},
		&QRCode{},
		&QRCodeScan{},
		&ReceiptSubmission{},
		&LoyaltyWallet{},
		&LoyaltyTransaction{},
		&Order{},
		&OutboxEvent{},
	}
}
