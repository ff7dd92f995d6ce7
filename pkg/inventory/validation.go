package inventory

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	idPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	// maxMoney is the largest amount a NUMERIC(12,2) column can hold
	maxMoney = decimal.RequireFromString("9999999999.99")
)

// ValidateItemID 商品IDの形式をバリデーション
func ValidateItemID(itemID string) error {
	if itemID == "" {
		return NewValidationError("item_id", "商品IDが空です", itemID)
	}
	if len(itemID) > 255 {
		return NewValidationError("item_id", "商品IDが長すぎます", itemID)
	}
	// 英数字、ハイフン、アンダースコアのみ許可
	if !idPattern.MatchString(itemID) {
		return NewValidationError("item_id", "商品IDに無効な文字が含まれています", itemID)
	}
	return nil
}

// ValidateItemName 商品名をバリデーション
func ValidateItemName(name string) error {
	if strings.TrimSpace(name) == "" {
		return NewValidationError("name", "商品名が空です", name)
	}
	if len(name) > 500 {
		return NewValidationError("name", "商品名が長すぎます", name)
	}
	return nil
}

// ValidateLocation ロケーションをバリデーション
func ValidateLocation(field string, location Location) error {
	if !location.Valid() {
		return NewValidationError(field, "無効なロケーションです", string(location))
	}
	return nil
}

// ValidatePositiveQuantity 正の数量をバリデーション
func ValidatePositiveQuantity(field string, quantity int64) error {
	if quantity <= 0 {
		return NewValidationError(field, "数量は正の値である必要があります", fmt.Sprintf("%d", quantity))
	}
	if quantity > 999999999 {
		return NewValidationError(field, "数量が有効範囲を超えています", fmt.Sprintf("%d", quantity))
	}
	return nil
}

// ValidateQuantity 0以上の数量をバリデーション
func ValidateQuantity(field string, quantity int64) error {
	if quantity < 0 {
		return NewValidationError(field, "負の数量は許可されていません", fmt.Sprintf("%d", quantity))
	}
	if quantity > 999999999 {
		return NewValidationError(field, "数量が有効範囲を超えています", fmt.Sprintf("%d", quantity))
	}
	return nil
}

// ValidateMoney 金額をバリデーション（0以上、小数点以下2桁以内）
// Run it before RoundMoney.
func ValidateMoney(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return NewValidationError(field, "金額は0以上である必要があります", amount.String())
	}
	if amount.GreaterThan(maxMoney) {
		return NewValidationError(field, "金額が有効範囲を超えています", amount.String())
	}
	if !amount.Equal(RoundMoney(amount)) {
		return NewValidationError(field, "金額は小数点以下2桁までです", amount.String())
	}
	return nil
}

// ValidateIdempotencyKey 冪等キーの形式をバリデーション
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return nil // 冪等キーは任意
	}
	if len(key) > 255 {
		return NewValidationError("idempotency_key", "冪等キーが長すぎます", key)
	}
	if !keyPattern.MatchString(key) {
		return NewValidationError("idempotency_key", "冪等キーに無効な文字が含まれています", key)
	}
	return nil
}

// ValidateReason 理由の形式をバリデーション
func ValidateReason(reason string) error {
	if len(reason) > 500 {
		return NewValidationError("reason", "理由が長すぎます", reason)
	}
	return nil
}

// ValidateLotKey 台帳キー全体をバリデーション
func ValidateLotKey(key LotKey) error {
	if err := ValidateItemID(key.ItemID); err != nil {
		return err
	}
	if err := ValidateLocation("location", key.Location); err != nil {
		return err
	}
	return ValidateMoney("unit_cost", key.UnitCost)
}

// ValidateItemSpec 入庫時の商品指定をバリデーション
func ValidateItemSpec(spec ItemSpec) error {
	if spec.ID != "" {
		return ValidateItemID(spec.ID)
	}
	if err := ValidateItemName(spec.Name); err != nil {
		return err
	}
	if len(spec.Weight) > 100 {
		return NewValidationError("weight", "規格が長すぎます", spec.Weight)
	}
	if spec.PackSize < 0 {
		return NewValidationError("pack_size", "パック入数は0以上である必要があります", fmt.Sprintf("%d", spec.PackSize))
	}
	return nil
}

// ValidateIntake 仕入リクエスト全体をバリデーション
func ValidateIntake(req IntakeRequest) error {
	if err := ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		return err
	}
	if err := ValidateLocation("destination", req.Destination); err != nil {
		return err
	}
	if err := ValidateItemSpec(req.Item); err != nil {
		return err
	}
	if err := ValidateQuantity("pack_qty", req.PackQty); err != nil {
		return err
	}
	if err := ValidateQuantity("free_packs", req.FreePacks); err != nil {
		return err
	}
	if req.PackQty+req.FreePacks <= 0 {
		return NewValidationError("pack_qty", "入庫数量は正の値である必要があります", fmt.Sprintf("%d", req.PackQty+req.FreePacks))
	}
	if err := ValidateMoney("buy_price", req.BuyPrice); err != nil {
		return err
	}
	return ValidateMoney("retail_price", req.RetailPrice)
}

// ValidateTransfer 移動リクエスト全体をバリデーション
func ValidateTransfer(req TransferRequest) error {
	if err := ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		return err
	}
	if err := ValidateLotKey(LotKey{ItemID: req.ItemID, Location: req.From, UnitCost: req.UnitCost}); err != nil {
		return err
	}
	if err := ValidateLocation("to", req.To); err != nil {
		return err
	}
	if req.From == req.To {
		return NewBusinessRuleError("same_location", "移動元と移動先が同じです", string(req.To))
	}
	return ValidatePositiveQuantity("qty", req.Qty)
}

// ValidateSale 売上リクエスト全体をバリデーション
func ValidateSale(req SaleRequest) error {
	if err := ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		return err
	}
	if len(req.Lines) == 0 {
		return NewValidationError("lines", "売上明細が空です", "0")
	}
	for i, line := range req.Lines {
		if err := ValidateItemID(line.ItemID); err != nil {
			return err
		}
		if err := ValidatePositiveQuantity(fmt.Sprintf("lines[%d].qty", i), line.Qty); err != nil {
			return err
		}
		if err := ValidateMoney(fmt.Sprintf("lines[%d].unit_sell_price", i), line.UnitSellPrice); err != nil {
			return err
		}
		if line.LotCost != nil {
			if err := ValidateMoney(fmt.Sprintf("lines[%d].lot_cost", i), *line.LotCost); err != nil {
				return err
			}
		}
	}
	return nil
}
