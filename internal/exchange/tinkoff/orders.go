package tinkoff

import (
	"context"
	"errors"
	"fmt"

	"github.com/russianinvestments/invest-api-go-sdk/investgo"
	pb "github.com/russianinvestments/invest-api-go-sdk/proto"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/camuig/coin-trader/internal/exchange"
)

const maxLotsPerOrder = 50000

// PlaceMarketOrder converts the share quantity to whole lots and posts a
// market order. Validation failures reported by the API come back as
// Success=false.
func (g *Gateway) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResult, error) {
	uid, err := g.resolveUID(req.Symbol)
	if err != nil {
		return nil, err
	}
	lot, err := g.lotSize(req.Symbol)
	if err != nil {
		return nil, err
	}

	lots := toLots(req.Quantity, lot)
	if lots < 1 {
		return &exchange.OrderResult{
			ErrorCode:    "LOT_SIZE",
			ErrorMessage: fmt.Sprintf("quantity %s is less than one lot of %d", req.Quantity, lot),
		}, nil
	}

	direction := pb.OrderDirection_ORDER_DIRECTION_BUY
	if req.Side == exchange.SideSell {
		direction = pb.OrderDirection_ORDER_DIRECTION_SELL
	}

	resp, err := g.postOrder(uid, lots, direction)
	if err != nil {
		if code, msg, ok := rejection(err); ok {
			return &exchange.OrderResult{ErrorCode: code, ErrorMessage: msg}, nil
		}
		return nil, fmt.Errorf("%s order: %w", req.Side, err)
	}

	result := &exchange.OrderResult{
		OrderID:     resp.GetOrderId(),
		ExecutedQty: decimal.NewFromInt(resp.GetLotsExecuted() * lot),
	}
	if ep := resp.GetExecutedOrderPrice(); ep != nil {
		result.ExecutedPrice = ep.ToFloat()
	}

	switch resp.GetExecutionReportStatus() {
	case pb.OrderExecutionReportStatus_EXECUTION_REPORT_STATUS_FILL,
		pb.OrderExecutionReportStatus_EXECUTION_REPORT_STATUS_PARTIALLYFILL:
		result.Success = true
	case pb.OrderExecutionReportStatus_EXECUTION_REPORT_STATUS_NEW:
		// market orders on a closed session stay queued
		result.Success = resp.GetLotsExecuted() > 0
		if !result.Success {
			result.ErrorCode = "NOT_EXECUTED"
			result.ErrorMessage = "market order accepted but not executed"
		}
	default:
		result.ErrorCode = resp.GetExecutionReportStatus().String()
		result.ErrorMessage = "market order was not filled"
	}
	return result, nil
}

func (g *Gateway) postOrder(uid string, lots int64, direction pb.OrderDirection) (*investgo.PostOrderResponse, error) {
	orderID := investgo.CreateUid()

	if g.sandbox {
		sandbox := g.client.NewSandboxServiceClient()
		return sandbox.PostSandboxOrder(&investgo.PostOrderRequest{
			InstrumentId: uid,
			Quantity:     lots,
			Direction:    direction,
			AccountId:    g.AccountID(),
			OrderType:    pb.OrderType_ORDER_TYPE_MARKET,
			OrderId:      orderID,
		})
	}

	req := &investgo.PostOrderRequestShort{
		InstrumentId: uid,
		Quantity:     lots,
		AccountId:    g.AccountID(),
		OrderType:    pb.OrderType_ORDER_TYPE_MARKET,
		OrderId:      orderID,
	}
	orders := g.client.NewOrdersServiceClient()
	if direction == pb.OrderDirection_ORDER_DIRECTION_SELL {
		return orders.Sell(req)
	}
	return orders.Buy(req)
}

// toLots returns the number of whole lots in qty shares.
func toLots(qty decimal.Decimal, lot int64) int64 {
	if lot <= 0 {
		return 0
	}
	return qty.Div(decimal.NewFromInt(lot)).Floor().IntPart()
}

// rejection reports whether err is an API-side order refusal rather than
// a transport failure.
func rejection(err error) (code, msg string, ok bool) {
	var se interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &se) {
		return "", "", false
	}
	st := se.GRPCStatus()
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.NotFound:
		return st.Code().String(), st.Message(), true
	}
	return "", "", false
}
